/**
 * Extraction Workflow Controller
 *
 * Owns the single workflow State and drives it through
 * idle -> selecting -> extracting -> succeeded|failed, back to idle on clear.
 *
 * Concurrency: at most one selection cycle is in flight. TriggerSelection
 * claims the cycle under the mutex and returns ErrBusy to a second caller;
 * the picker wait and the provider call run outside the lock so State()
 * stays readable for rendering.
 */

package workflow

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imagetext/imagetext/internal/acquire"
	"github.com/imagetext/imagetext/internal/errors"
	"github.com/imagetext/imagetext/internal/logging"
)

// ErrBusy is returned when a selection is triggered while one is in flight.
var ErrBusy = stderrors.New("workflow: selection already in progress")

// TextDetector runs OCR on a base64-encoded image.
type TextDetector interface {
	DetectText(ctx context.Context, content string) (string, error)
}

// Controller is the extraction workflow state machine.
type Controller struct {
	picker   acquire.Picker
	detector TextDetector
	log      *logging.Logger
	now      func() time.Time

	mu    sync.Mutex
	state State
}

// ControllerConfig holds controller dependencies
type ControllerConfig struct {
	Picker   acquire.Picker
	Detector TextDetector
	Logger   *logging.Logger
}

// NewController creates a controller in PhaseIdle
func NewController(cfg *ControllerConfig) (*Controller, error) {
	if cfg.Picker == nil {
		return nil, fmt.Errorf("Picker is required")
	}
	if cfg.Detector == nil {
		return nil, fmt.Errorf("Detector is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Controller{
		picker:   cfg.Picker,
		detector: cfg.Detector,
		log:      logger,
		now:      time.Now,
		state:    State{Phase: PhaseIdle},
	}, nil
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TriggerSelection runs one full cycle: pick, encode, extract. It blocks until
// the cycle settles and returns the resulting state. From selecting or
// extracting it changes nothing and returns ErrBusy. A panic in the picker or
// detector settles the cycle as failed.
func (c *Controller) TriggerSelection(ctx context.Context) (result State, err error) {
	c.mu.Lock()
	if c.state.Phase.Busy() {
		st := c.state
		c.mu.Unlock()
		c.log.Debug("selection ignored", "phase", st.Phase, "attempt", st.AttemptID)
		return st, ErrBusy
	}
	attempt := uuid.NewString()
	c.state = State{Phase: PhaseSelecting, AttemptID: attempt}
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			result, err = c.recoverCycle(attempt, r), nil
		}
	}()

	c.log.Info("selection started", "attempt", attempt)

	out := c.picker.RequestImage(ctx)

	switch out.Kind {
	case acquire.KindAcquired:
		// handled below
	case acquire.KindCancelled:
		c.log.Info("selection cancelled", "attempt", attempt)
		return c.settle(State{Phase: PhaseIdle}), nil
	case acquire.KindPermissionDenied, acquire.KindNoPayload:
		c.log.Warn("selection returned no image", "attempt", attempt, "outcome", out.Kind, "error", out.Err)
		return c.settle(State{Phase: PhaseIdle, Notice: noticeFor(out)}), nil
	default:
		c.log.Error("unknown acquisition outcome", "attempt", attempt, "outcome", out.Kind)
		return c.settle(State{Phase: PhaseIdle}), nil
	}

	c.mu.Lock()
	c.state = State{Phase: PhaseExtracting, AttemptID: attempt, ImageRef: out.DisplayRef}
	c.mu.Unlock()

	return c.extract(ctx, attempt, out.DisplayRef, out.Payload), nil
}

// extract issues the single provider request for payload. payload goes out of
// scope when this returns.
func (c *Controller) extract(ctx context.Context, attempt, ref, payload string) State {
	c.log.Info("extraction started", "attempt", attempt, "image", ref, "payload_bytes", len(payload))
	start := c.now()

	text, err := c.detector.DetectText(ctx, payload)
	duration := c.now().Sub(start)

	if err != nil {
		err = asExtractionError(err)
		c.log.Error("extraction failed", "attempt", attempt, "duration", duration, "error", err)
		return c.settle(State{Phase: PhaseFailed, AttemptID: attempt, ImageRef: ref, Err: err})
	}
	if text == "" {
		c.log.Warn("extraction returned no text", "attempt", attempt, "duration", duration)
		return c.settle(State{Phase: PhaseFailed, AttemptID: attempt, ImageRef: ref, Err: errors.NewNoTextDetectedError()})
	}

	c.log.Info("extraction succeeded", "attempt", attempt, "duration", duration, "chars", len(text))
	return c.settle(State{Phase: PhaseSucceeded, AttemptID: attempt, ImageRef: ref, ExtractedText: text})
}

// Clear resets a settled result to idle. In idle, selecting or extracting it
// changes nothing.
func (c *Controller) Clear() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Phase {
	case PhaseSucceeded, PhaseFailed:
		c.log.Info("result cleared", "attempt", c.state.AttemptID, "phase", c.state.Phase)
		c.state = State{Phase: PhaseIdle}
	case PhaseIdle:
		c.state.Notice = nil
	}
	return c.state
}

// recoverCycle releases a cycle that panicked so the controller accepts new selections.
func (c *Controller) recoverCycle(attempt string, r interface{}) State {
	c.mu.Lock()
	ref := c.state.ImageRef
	c.mu.Unlock()

	c.log.Error("selection aborted", "attempt", attempt, "panic", r)
	return c.settle(State{
		Phase:     PhaseFailed,
		AttemptID: attempt,
		ImageRef:  ref,
		Err:       errors.NewProviderError(0, fmt.Sprintf("extraction aborted: %v", r), nil),
	})
}

func (c *Controller) settle(next State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = next
	return next
}

func noticeFor(out acquire.Outcome) error {
	if out.Err != nil {
		return out.Err
	}
	if out.Kind == acquire.KindPermissionDenied {
		return errors.NewPermissionError("media library", nil)
	}
	return errors.NewNoPayloadError("selection", "no image data")
}

// asExtractionError keeps taxonomy errors as they are and wraps anything else
// from a detector as a provider failure.
func asExtractionError(err error) error {
	var xerr *errors.ExtractionError
	if stderrors.As(err, &xerr) {
		return err
	}
	return errors.NewProviderError(0, err.Error(), err)
}
