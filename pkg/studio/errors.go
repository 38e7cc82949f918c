package studio

import (
	"errors"
	"fmt"
)

// Sentinel errors for the studio package.
var (
	// ErrNoAPIKey indicates the API key was not provided.
	ErrNoAPIKey = errors.New("studio: API key is required")

	// ErrEmptyPrompt indicates the prompt or text was blank.
	ErrEmptyPrompt = errors.New("studio: prompt is required")

	// ErrNoResult indicates the provider returned nothing usable.
	ErrNoResult = errors.New("studio: provider returned no result")

	// ErrTimeout indicates a video job did not finish in time.
	ErrTimeout = errors.New("studio: generation timed out")
)

// GenerationError wraps a provider failure with the operation that failed.
type GenerationError struct {
	// Op is "image", "thumbnail", "speech" or "video".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("studio: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Err
}
