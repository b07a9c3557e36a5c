package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imagetext/imagetext/internal/errors"
)

func TestSentinelMatchingByCode(t *testing.T) {
	err := errors.NewProviderError(403, "API key not valid", nil)
	wrapped := fmt.Errorf("annotate: %w", err)

	require.True(t, stderrors.Is(wrapped, errors.ErrProvider))
	require.False(t, stderrors.Is(wrapped, errors.ErrNoTextDetected))

	var target *errors.ExtractionError
	require.True(t, stderrors.As(wrapped, &target))
	require.Equal(t, 403, target.Status)
}

func TestRecoverable(t *testing.T) {
	require.True(t, errors.NewPermissionError("/media", nil).Recoverable())
	require.True(t, errors.NewNoPayloadError("a.txt", "not an image").Recoverable())
	require.False(t, errors.NewNoTextDetectedError().Recoverable())
	require.False(t, errors.NewProviderError(500, "", nil).Recoverable())
}

func TestProviderErrorDefaultsMessage(t *testing.T) {
	err := errors.NewProviderError(0, "", nil)
	require.Equal(t, "PROVIDER_ERROR: OCR provider request failed", err.Error())
}

func TestTimeoutErrorToMap(t *testing.T) {
	cause := stderrors.New("context deadline exceeded")
	err := errors.NewProviderTimeoutError(30*time.Second, cause)

	m := err.ToMap()
	require.Equal(t, "PROVIDER_ERROR", m["error_code"])
	require.Equal(t, "30s", m["timeout_duration"])
	require.Equal(t, 0, m["http_status"])
	require.Equal(t, "context deadline exceeded", m["cause"])
	require.ErrorIs(t, err, cause)
}
