package errors

import (
	"fmt"
	"time"
)

/**
 * Error taxonomy for the extraction workflow
 *
 * Every failure the workflow can observe is converted into an ExtractionError
 * at the boundary that produced it (picker call, provider call).
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Acquisition errors (recovered to idle)
	ErrorPermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrorNoPayload        ErrorCode = "NO_PAYLOAD"

	// Extraction errors (surface as a failed attempt)
	ErrorProvider       ErrorCode = "PROVIDER_ERROR"
	ErrorNoTextDetected ErrorCode = "NO_TEXT_DETECTED"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrPermissionDenied = &ExtractionError{Code: ErrorPermissionDenied}
	ErrNoPayload        = &ExtractionError{Code: ErrorNoPayload}
	ErrProvider         = &ExtractionError{Code: ErrorProvider}
	ErrNoTextDetected   = &ExtractionError{Code: ErrorNoTextDetected}
)

// ExtractionError represents a structured workflow error
type ExtractionError struct {
	Code      ErrorCode
	Message   string
	Status    int // HTTP status for provider errors, 0 when no response was received
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExtractionError with the same code.
func (e *ExtractionError) Is(target error) bool {
	t, ok := target.(*ExtractionError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Recoverable reports whether the error returns the workflow to idle rather than failed.
func (e *ExtractionError) Recoverable() bool {
	return e.Code == ErrorPermissionDenied || e.Code == ErrorNoPayload
}

// Factory functions

func NewPermissionError(resource string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorPermissionDenied,
		Message:   fmt.Sprintf("Permission to access %s was denied", resource),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"resource": resource,
		},
		Cause: cause,
	}
}

func NewNoPayloadError(source string, reason string) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorNoPayload,
		Message:   fmt.Sprintf("No usable image data in %s: %s", source, reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source": source,
			"reason": reason,
		},
	}
}

func NewProviderError(status int, message string, cause error) *ExtractionError {
	if message == "" {
		message = "OCR provider request failed"
	}
	return &ExtractionError{
		Code:      ErrorProvider,
		Message:   message,
		Status:    status,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"http_status": status,
		},
		Cause: cause,
	}
}

func NewProviderTimeoutError(timeout time.Duration, cause error) *ExtractionError {
	err := NewProviderError(0, fmt.Sprintf("OCR request timed out after %v", timeout), cause)
	err.Details["timeout_duration"] = timeout.String()
	return err
}

func NewNoTextDetectedError() *ExtractionError {
	return &ExtractionError{
		Code:      ErrorNoTextDetected,
		Message:   "No text detected in image",
		Timestamp: time.Now(),
	}
}

// ToMap converts error to map for event payloads
func (e *ExtractionError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
