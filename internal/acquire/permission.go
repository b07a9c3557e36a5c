package acquire

import (
	"context"
	"sync"
)

// Permission asks the host for media access before a picker opens.
type Permission interface {
	Request(ctx context.Context) (bool, error)
}

// AlwaysGranted is used where access is governed by the media root alone.
type AlwaysGranted struct{}

func (AlwaysGranted) Request(context.Context) (bool, error) { return true, nil }

// PromptFunc asks the user once; true means granted.
type PromptFunc func(ctx context.Context) (bool, error)

// OnceGrant remembers a positive answer for the life of the process.
// A denial is not remembered, so the next selection asks again.
type OnceGrant struct {
	mu      sync.Mutex
	granted bool
	prompt  PromptFunc
}

// NewOnceGrant wraps prompt.
func NewOnceGrant(prompt PromptFunc) *OnceGrant {
	return &OnceGrant{prompt: prompt}
}

func (g *OnceGrant) Request(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.granted {
		return true, nil
	}
	ok, err := g.prompt(ctx)
	if err != nil {
		return false, err
	}
	g.granted = ok
	return ok, nil
}
