//go:build !gocv

package capture

import "context"

const cameraAvailable = false

// CameraGrabber is unavailable without the gocv build tag.
type CameraGrabber struct {
	device string
}

// NewCameraGrabber returns an error matching ErrUnsupported.
// Build with -tags gocv for local camera support.
func NewCameraGrabber(device string, quality int) (*CameraGrabber, error) {
	return nil, NewCameraError(device, ErrUnsupported, nil)
}

// Open implements FrameGrabber.
func (c *CameraGrabber) Open(ctx context.Context) error {
	return NewCameraError(c.device, ErrUnsupported, nil)
}

// Grab implements FrameGrabber.
func (c *CameraGrabber) Grab(ctx context.Context) ([]byte, error) {
	return nil, NewCameraError(c.device, ErrUnsupported, nil)
}

// Close implements FrameGrabber.
func (c *CameraGrabber) Close() error {
	return nil
}

var _ FrameGrabber = (*CameraGrabber)(nil)
