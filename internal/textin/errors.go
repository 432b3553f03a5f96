package textin

import (
	"errors"
	"fmt"
)

// Common TextIn client errors
var (
	// ErrMissingCredentials is returned when the client is constructed without
	// an app ID or secret code.
	ErrMissingCredentials = errors.New("missing TextIn credentials: set TEXTIN_APP_ID and TEXTIN_SECRET_CODE environment variables")

	// ErrEmptyFile is returned when the file to upload contains no data.
	ErrEmptyFile = errors.New("file is empty")
)

// APIError is returned when TextIn responds with HTTP 200 but a non-200
// code in the response envelope.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("textin: API error %d: %s", e.Code, e.Message)
}

// StatusError is returned when TextIn responds with a non-2xx HTTP status.
// Statuses of 500 and above are retried before this error surfaces.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("textin: unexpected HTTP status %d", e.StatusCode)
}

// TextinError wraps errors with additional context about the failed call.
type TextinError struct {
	// Op is the operation that failed (e.g., "ParseFile", "RemoveWatermark").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *TextinError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("textin: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("textin: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *TextinError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped sentinel errors.
func (e *TextinError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapTextinError wraps an error as a TextinError if it isn't already one.
func WrapTextinError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var te *TextinError
	if errors.As(err, &te) {
		return err
	}

	return &TextinError{Op: op, Err: err, Details: details}
}
