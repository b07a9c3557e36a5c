package acquire

import (
	"context"
	"errors"
)

// ErrCancelled is returned by a Chooser when the user dismissed the picker.
var ErrCancelled = errors.New("selection cancelled")

// Chooser yields the path of a user-selected file. It blocks until the user
// answers and returns ErrCancelled on dismissal.
type Chooser interface {
	Choose(ctx context.Context) (string, error)
}

type choice struct {
	path string
	err  error
}

// Request is one pending Choose call waiting for an answer.
// Exactly one of Select or Cancel must be called.
type Request struct {
	reply chan<- choice
}

// Select answers the request with a path.
func (r Request) Select(path string) {
	r.reply <- choice{path: path}
}

// Cancel answers the request as a dismissal.
func (r Request) Cancel() {
	r.reply <- choice{err: ErrCancelled}
}

// Handoff is a Chooser answered from another goroutine: a terminal file
// picker or a queue handler receives from Requests and replies.
type Handoff struct {
	requests chan Request
}

// NewHandoff creates an unbuffered handoff.
func NewHandoff() *Handoff {
	return &Handoff{requests: make(chan Request)}
}

// Requests delivers pending Choose calls.
func (h *Handoff) Requests() <-chan Request {
	return h.requests
}

// Choose publishes a request and waits for its answer. A done ctx counts as a dismissal.
func (h *Handoff) Choose(ctx context.Context) (string, error) {
	reply := make(chan choice, 1)

	select {
	case h.requests <- Request{reply: reply}:
	case <-ctx.Done():
		return "", ErrCancelled
	}

	select {
	case c := <-reply:
		return c.path, c.err
	case <-ctx.Done():
		return "", ErrCancelled
	}
}

// Answer waits for the next request and selects path. It returns false if ctx
// ends before anyone asks.
func (h *Handoff) Answer(ctx context.Context, path string) bool {
	select {
	case req := <-h.requests:
		req.Select(path)
		return true
	case <-ctx.Done():
		return false
	}
}
