package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Pick   key.Binding
	Clear  key.Binding
	Quit   key.Binding
	Cancel key.Binding
	Yes    key.Binding
	No     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Pick:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pick an image")),
		Clear:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear results")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Yes:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "allow")),
		No:     key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "deny")),
	}
}
