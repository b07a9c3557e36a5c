package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imagetext/imagetext/internal/acquire"
)

// Bridge connects the workflow's blocking picker and permission calls to the
// TUI event loop. The workflow side blocks on Choose and AskPermission; the
// model receives the pending request as a message and answers it.
type Bridge struct {
	Handoff *acquire.Handoff
	prompts chan chan<- bool
}

// NewBridge creates a bridge with an unanswered handoff.
func NewBridge() *Bridge {
	return &Bridge{
		Handoff: acquire.NewHandoff(),
		prompts: make(chan chan<- bool),
	}
}

// AskPermission is an acquire.PromptFunc answered by the y/n prompt.
func (b *Bridge) AskPermission(ctx context.Context) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case b.prompts <- reply:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type pickRequestMsg struct {
	req acquire.Request
}

type permissionPromptMsg struct {
	reply chan<- bool
}

func waitForPick(b *Bridge) tea.Cmd {
	return func() tea.Msg {
		return pickRequestMsg{req: <-b.Handoff.Requests()}
	}
}

func waitForPrompt(b *Bridge) tea.Cmd {
	return func() tea.Msg {
		return permissionPromptMsg{reply: <-b.prompts}
	}
}
