package tools

import (
	"errors"
	"fmt"
)

// Sentinel errors for the tools package.
var (
	// ErrUnknownTool indicates a call name outside the registry.
	ErrUnknownTool = errors.New("tools: unknown tool")

	// ErrNotAuthenticated indicates the email composer has no OAuth token.
	ErrNotAuthenticated = errors.New("tools: not authenticated")
)

// ArgumentError reports a missing or mistyped call argument.
type ArgumentError struct {
	Tool   string
	Arg    string
	Reason string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("tools: %s: argument %q %s", e.Tool, e.Arg, e.Reason)
}

// IsArgumentError returns true if err is or wraps an ArgumentError.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}
