package live

import (
	"errors"
	"fmt"
)

// Sentinel errors for the live package.
var (
	// ErrClosed indicates a send on a closed Conn.
	ErrClosed = errors.New("live: connection closed")

	// ErrMissingCredential indicates Options.Credential was empty.
	ErrMissingCredential = errors.New("live: credential is required")
)

// TransportError reports that the remote channel failed to open or closed
// unexpectedly.
type TransportError struct {
	// Op is the failed operation: "dial", "setup", "send" or "receive".
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("live: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
