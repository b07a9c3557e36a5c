package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/imagetext/imagetext/internal/acquire"
	"github.com/imagetext/imagetext/internal/errors"
	"github.com/imagetext/imagetext/internal/workflow"
)

type fakeController struct {
	state    workflow.State
	next     workflow.State
	triggers int
	clears   int
}

func (f *fakeController) State() workflow.State { return f.state }

func (f *fakeController) TriggerSelection(context.Context) (workflow.State, error) {
	f.triggers++
	f.state = f.next
	return f.next, nil
}

func (f *fakeController) Clear() workflow.State {
	f.clears++
	f.state = workflow.State{Phase: workflow.PhaseIdle}
	return f.state
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(t *testing.T, ctl Controller) (Model, *Bridge) {
	t.Helper()
	b := NewBridge()
	return New(context.Background(), ctl, b, t.TempDir()), b
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

// collect runs cmd and any batched commands, returning the messages produced.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		out = append(out, collect(c)...)
	}
	return out
}

func TestPickRunsWorkflow(t *testing.T) {
	ctl := &fakeController{
		state: workflow.State{Phase: workflow.PhaseIdle},
		next:  workflow.State{Phase: workflow.PhaseSucceeded, ImageRef: "a.png", ExtractedText: "HELLO"},
	}
	m, _ := newTestModel(t, ctl)

	m, cmd := update(t, m, runes("p"))
	require.True(t, m.busy)
	require.NotNil(t, cmd)

	var done *workflowDoneMsg
	for _, msg := range collect(cmd) {
		if d, ok := msg.(workflowDoneMsg); ok {
			done = &d
		}
	}
	require.NotNil(t, done)
	require.Equal(t, 1, ctl.triggers)

	m, _ = update(t, m, *done)
	require.False(t, m.busy)
	require.Equal(t, workflow.PhaseSucceeded, m.state.Phase)
	require.Contains(t, m.View(), "HELLO")
	require.Contains(t, m.View(), "a.png")
}

func TestPickWhileBusyIsIgnored(t *testing.T) {
	ctl := &fakeController{state: workflow.State{Phase: workflow.PhaseIdle}}
	m, _ := newTestModel(t, ctl)
	m.busy = true

	m, cmd := update(t, m, runes("p"))
	require.Nil(t, cmd)
	require.Equal(t, "An extraction is already running.", m.flash)

	m, _ = update(t, m, runes("c"))
	require.Equal(t, 0, ctl.clears)
}

func TestClearResetsResult(t *testing.T) {
	ctl := &fakeController{state: workflow.State{Phase: workflow.PhaseFailed, Err: errors.NewNoTextDetectedError()}}
	m, _ := newTestModel(t, ctl)
	require.Contains(t, m.View(), "No text detected in image")

	m, _ = update(t, m, runes("c"))
	require.Equal(t, 1, ctl.clears)
	require.Equal(t, workflow.PhaseIdle, m.state.Phase)
	require.NotContains(t, m.View(), "No text detected")
}

func TestIdleNoticeIsShown(t *testing.T) {
	ctl := &fakeController{state: workflow.State{
		Phase:  workflow.PhaseIdle,
		Notice: errors.NewNoPayloadError("scan.png", "file is empty"),
	}}
	m, _ := newTestModel(t, ctl)
	require.Contains(t, m.View(), "file is empty")
}

func pendingRequest(t *testing.T) (acquire.Request, <-chan error) {
	t.Helper()
	h := acquire.NewHandoff()
	errc := make(chan error, 1)
	go func() {
		_, err := h.Choose(context.Background())
		errc <- err
	}()
	select {
	case req := <-h.Requests():
		return req, errc
	case <-time.After(time.Second):
		t.Fatal("no request published")
		return acquire.Request{}, nil
	}
}

func TestEscCancelsPicker(t *testing.T) {
	m, _ := newTestModel(t, &fakeController{state: workflow.State{Phase: workflow.PhaseSelecting}})
	req, errc := pendingRequest(t)

	m, cmd := update(t, m, pickRequestMsg{req: req})
	require.Equal(t, modePicking, m.mode)
	require.NotNil(t, cmd)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, modeMain, m.mode)
	require.Nil(t, m.pending)
	require.ErrorIs(t, <-errc, acquire.ErrCancelled)
}

func TestQuitReleasesPendingRequest(t *testing.T) {
	m, _ := newTestModel(t, &fakeController{state: workflow.State{Phase: workflow.PhaseSelecting}})
	req, errc := pendingRequest(t)
	m, _ = update(t, m, pickRequestMsg{req: req})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.ErrorIs(t, <-errc, acquire.ErrCancelled)
}

func TestPermissionPrompt(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
		want bool
	}{
		{name: "allow", key: runes("y"), want: true},
		{name: "deny", key: runes("n"), want: false},
		{name: "dismiss", key: tea.KeyMsg{Type: tea.KeyEsc}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, b := newTestModel(t, &fakeController{state: workflow.State{Phase: workflow.PhaseSelecting}})

			type answer struct {
				ok  bool
				err error
			}
			done := make(chan answer, 1)
			go func() {
				ok, err := b.AskPermission(context.Background())
				done <- answer{ok, err}
			}()

			msg := waitForPrompt(b)()
			m, cmd := update(t, m, msg)
			require.Equal(t, modePermission, m.mode)
			require.NotNil(t, cmd)
			require.True(t, strings.Contains(m.View(), "(y/n)"))

			m, _ = update(t, m, tt.key)
			require.Equal(t, modeMain, m.mode)

			got := <-done
			require.NoError(t, got.err)
			require.Equal(t, tt.want, got.ok)
		})
	}
}

func TestAskPermissionHonoursContext(t *testing.T) {
	b := NewBridge()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := b.AskPermission(ctx)
	require.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)
}
