package acquire

import "context"

// Kind tags an acquisition Outcome.
type Kind string

const (
	KindPermissionDenied Kind = "permission_denied"
	KindCancelled        Kind = "cancelled"
	KindNoPayload        Kind = "no_payload"
	KindAcquired         Kind = "acquired"
)

// Outcome is the normalized result of one picker interaction.
// DisplayRef and Payload are set only for KindAcquired; Err is set for
// KindPermissionDenied and KindNoPayload.
type Outcome struct {
	Kind       Kind
	DisplayRef string
	Payload    string // standard base64 of the image bytes
	Err        error
}

// Picker is what the workflow controller calls to obtain an image.
type Picker interface {
	RequestImage(ctx context.Context) Outcome
}
