package ui

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/imagetext/imagetext/internal/acquire"
	"github.com/imagetext/imagetext/internal/workflow"
)

type mode int

const (
	modeMain mode = iota
	modePermission
	modePicking
)

var imageTypes = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

type workflowDoneMsg struct {
	state workflow.State
	err   error
}

// Controller is the part of the workflow the TUI drives.
type Controller interface {
	State() workflow.State
	TriggerSelection(ctx context.Context) (workflow.State, error)
	Clear() workflow.State
}

// Model renders the workflow state and issues pick and clear commands.
type Model struct {
	ctx    context.Context
	ctl    Controller
	bridge *Bridge
	root   string
	keys   keyMap

	mode      mode
	picker    filepicker.Model
	pending   *acquire.Request
	permReply chan<- bool
	spinner   spinner.Model

	busy  bool
	state workflow.State
	flash string
	width int
}

// New creates the TUI model. root is the directory the file picker opens in.
func New(ctx context.Context, ctl Controller, bridge *Bridge, root string) Model {
	fp := filepicker.New()
	fp.CurrentDirectory = root
	fp.AllowedTypes = imageTypes
	fp.AutoHeight = false
	fp.Height = 12
	// esc dismisses the picker instead of walking up a directory.
	fp.KeyMap.Back = key.NewBinding(key.WithKeys("h", "backspace", "left"), key.WithHelp("h", "back"))

	return Model{
		ctx:     ctx,
		ctl:     ctl,
		bridge:  bridge,
		root:    root,
		keys:    newKeyMap(),
		picker:  fp,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		state:   ctl.State(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForPick(m.bridge), waitForPrompt(m.bridge))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd

	case pickRequestMsg:
		req := msg.req
		m.pending = &req
		m.mode = modePicking
		m.picker.CurrentDirectory = m.root
		return m, tea.Batch(m.picker.Init(), waitForPick(m.bridge))

	case permissionPromptMsg:
		m.permReply = msg.reply
		m.mode = modePermission
		return m, waitForPrompt(m.bridge)

	case workflowDoneMsg:
		m.busy = false
		m.state = msg.state
		if msg.err != nil && stderrors.Is(msg.err, workflow.ErrBusy) {
			m.flash = "An extraction is already running."
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		m.state = m.ctl.State()
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.mode == modePicking {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.abandon()
		return m, tea.Quit
	}

	switch m.mode {
	case modePermission:
		switch {
		case key.Matches(msg, m.keys.Yes):
			m.answerPermission(true)
		case key.Matches(msg, m.keys.No):
			m.answerPermission(false)
		}
		return m, nil

	case modePicking:
		if key.Matches(msg, m.keys.Cancel) {
			m.pending.Cancel()
			m.pending = nil
			m.mode = modeMain
			return m, nil
		}
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		if ok, path := m.picker.DidSelectFile(msg); ok {
			m.pending.Select(path)
			m.pending = nil
			m.mode = modeMain
		} else if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
			m.flash = fmt.Sprintf("%s is not a supported image.", filepath.Base(path))
		}
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.abandon()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Pick):
		m.flash = ""
		if m.busy {
			m.flash = "An extraction is already running."
			return m, nil
		}
		m.busy = true
		return m, tea.Batch(m.trigger(), m.spinner.Tick)

	case key.Matches(msg, m.keys.Clear):
		m.flash = ""
		if m.busy {
			return m, nil
		}
		m.state = m.ctl.Clear()
		return m, nil
	}
	return m, nil
}

func (m Model) trigger() tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg {
		st, err := ctl.TriggerSelection(ctx)
		return workflowDoneMsg{state: st, err: err}
	}
}

func (m *Model) answerPermission(ok bool) {
	if m.permReply != nil {
		m.permReply <- ok
		m.permReply = nil
	}
	m.mode = modeMain
}

// abandon releases any blocked workflow call before quitting.
func (m *Model) abandon() {
	if m.pending != nil {
		m.pending.Cancel()
		m.pending = nil
	}
	if m.permReply != nil {
		m.permReply <- false
		m.permReply = nil
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Image to Text Converter") + "\n")
	b.WriteString(subtitleStyle.Render("Upload an image to extract text") + "\n\n")

	switch m.mode {
	case modePermission:
		b.WriteString(modalStyle.Render(fmt.Sprintf("Allow access to images in %s? (y/n)", m.root)) + "\n")
		return b.String()
	case modePicking:
		b.WriteString(m.picker.View() + "\n")
		if m.flash != "" {
			b.WriteString(noticeStyle.Render(m.flash) + "\n")
		}
		b.WriteString(helpStyle.Render("enter select • h back • esc cancel") + "\n")
		return b.String()
	}

	status := string(m.state.Phase)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(statusStyle.Render(status) + "\n\n")

	if m.state.ImageRef != "" {
		b.WriteString(imageStyle.Render("Image: "+m.state.ImageRef) + "\n\n")
	}

	width := m.width - 4
	if width < 20 {
		width = 76
	}

	switch m.state.Phase {
	case workflow.PhaseSucceeded:
		b.WriteString(textBoxStyle.Width(width).Render(m.state.ExtractedText) + "\n")
	case workflow.PhaseFailed:
		b.WriteString(errorStyle.Render(m.state.Message()) + "\n")
	case workflow.PhaseIdle:
		if m.state.Notice != nil {
			b.WriteString(noticeStyle.Render(m.state.Message()) + "\n")
		}
	}

	if m.flash != "" {
		b.WriteString(noticeStyle.Render(m.flash) + "\n")
	}

	help := []string{m.keys.Pick.Help().Key + " " + m.keys.Pick.Help().Desc}
	if m.state.Phase == workflow.PhaseSucceeded || m.state.Phase == workflow.PhaseFailed {
		help = append(help, m.keys.Clear.Help().Key+" "+m.keys.Clear.Help().Desc)
	}
	help = append(help, m.keys.Quit.Help().Key+" "+m.keys.Quit.Help().Desc)
	b.WriteString("\n" + helpStyle.Render(strings.Join(help, " • ")))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}
