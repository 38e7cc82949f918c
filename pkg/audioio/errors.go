package audioio

import (
	"errors"
	"fmt"
)

// Device acquisition errors. Backends wrap these in a DeviceError so callers
// can tell which device failed while still matching with errors.Is.
var (
	// ErrPermissionDenied indicates the user or OS refused device access.
	ErrPermissionDenied = errors.New("audioio: device permission denied")

	// ErrDeviceNotFound indicates no device matches the request.
	ErrDeviceNotFound = errors.New("audioio: device not found")

	// ErrUnsupported indicates the backend or mode is not available in
	// this build or environment.
	ErrUnsupported = errors.New("audioio: not supported in this environment")
)

// DeviceError describes a failed device acquisition.
type DeviceError struct {
	// Device names the device or backend, e.g. "portaudio:default".
	Device string

	// Err is one of the sentinel errors above, optionally wrapping a cause.
	Err error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("audioio: %s: %v", e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// NewDeviceError wraps kind (a sentinel) and an optional cause.
func NewDeviceError(device string, kind, cause error) *DeviceError {
	if cause == nil {
		return &DeviceError{Device: device, Err: kind}
	}
	return &DeviceError{Device: device, Err: fmt.Errorf("%w: %v", kind, cause)}
}

// DecodeError reports malformed wire-encoded audio.
type DecodeError struct {
	// Offset is the byte offset of the first offending character, or -1
	// when the failure is not tied to a single position.
	Offset int

	// Reason describes the failure.
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("audioio: decode: %s at offset %d", e.Reason, e.Offset)
	}
	return "audioio: decode: " + e.Reason
}

// IsDecodeError returns true if err is or wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// BrowserDeviceError maps a getUserMedia DOMException name reported by the
// browser UI to a DeviceError.
func BrowserDeviceError(device, name, message string) *DeviceError {
	var kind error
	switch name {
	case "NotAllowedError", "SecurityError", "PermissionDeniedError":
		kind = ErrPermissionDenied
	case "NotSupportedError", "TypeError":
		kind = ErrUnsupported
	default:
		kind = ErrDeviceNotFound
	}
	if message == "" {
		return NewDeviceError(device, kind, nil)
	}
	return NewDeviceError(device, kind, errors.New(name+": "+message))
}
