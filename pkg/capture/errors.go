package capture

import (
	"errors"

	"github.com/teslashibe/go-murmur/pkg/audioio"
)

// Device acquisition errors, shared with the audioio backends so a source
// failure matches these with errors.Is.
var (
	// ErrPermissionDenied indicates the user or OS refused device access.
	ErrPermissionDenied = audioio.ErrPermissionDenied

	// ErrDeviceNotFound indicates no matching device exists.
	ErrDeviceNotFound = audioio.ErrDeviceNotFound

	// ErrUnsupported indicates the requested mode is unavailable here.
	ErrUnsupported = audioio.ErrUnsupported
)

// DeviceError describes a failed device acquisition.
type DeviceError = audioio.DeviceError

// IsPermissionDenied returns true if the user can fix err by granting access.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsDeviceError returns true if err is any device acquisition failure.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

func asDeviceError(device string, err error) error {
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return audioio.NewDeviceError(device, ErrDeviceNotFound, err)
}

// NewCameraError wraps kind for a camera device.
func NewCameraError(device string, kind, cause error) *DeviceError {
	if device == "" {
		device = "default"
	}
	return audioio.NewDeviceError("camera:"+device, kind, cause)
}

// CameraAvailable reports whether local camera capture was compiled in.
func CameraAvailable() bool {
	return cameraAvailable
}
