package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session package.
var (
	// ErrActive indicates Start was called while a session is running.
	ErrActive = errors.New("session: already active")

	// ErrStopped indicates Stop was called while Start was in progress.
	ErrStopped = errors.New("session: stopped during start")
)

// ConfigurationError reports missing or invalid start parameters. It is
// returned before any device is touched.
type ConfigurationError struct {
	// Field names the offending parameter.
	Field string

	// Reason describes the problem.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("session: configuration: %s %s", e.Field, e.Reason)
}

// IsConfigurationError returns true if err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
