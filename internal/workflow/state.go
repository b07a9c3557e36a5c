package workflow

// Phase is the discrete state of the extraction workflow.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSelecting  Phase = "selecting"
	PhaseExtracting Phase = "extracting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Phases lists every phase in cycle order.
var Phases = []Phase{PhaseIdle, PhaseSelecting, PhaseExtracting, PhaseSucceeded, PhaseFailed}

// Busy reports whether an operation is in flight.
func (p Phase) Busy() bool {
	return p == PhaseSelecting || p == PhaseExtracting
}

// State is the read-only view handed to presentation.
//
// The encoded image payload is deliberately absent: it lives only for the
// duration of one provider call inside the controller.
type State struct {
	Phase Phase

	// AttemptID correlates one selection cycle in logs and events. Empty in idle.
	AttemptID string

	// ImageRef is the display handle of the selected image.
	ImageRef string

	// ExtractedText is set only in PhaseSucceeded.
	ExtractedText string

	// Err is the last extraction error, set only in PhaseFailed.
	Err error

	// Notice explains why the last selection returned to idle
	// (permission denied or no usable payload). Nil after a cancel.
	Notice error
}

// Message is the user-facing line for the current result or notice.
func (s State) Message() string {
	switch {
	case s.Phase == PhaseSucceeded:
		return s.ExtractedText
	case s.Phase == PhaseFailed && s.Err != nil:
		return s.Err.Error()
	case s.Phase == PhaseFailed:
		return "Text extraction failed."
	case s.Notice != nil:
		return s.Notice.Error()
	default:
		return ""
	}
}
