//go:build gocv

package capture

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

const cameraAvailable = true

// CameraGrabber reads stills from a local camera through OpenCV.
type CameraGrabber struct {
	device  string
	quality int

	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// NewCameraGrabber creates a grabber for device, an index ("0") or a
// path/URL. Empty selects camera 0.
func NewCameraGrabber(device string, quality int) (*CameraGrabber, error) {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &CameraGrabber{device: device, quality: quality}, nil
}

// Open implements FrameGrabber.
func (c *CameraGrabber) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	var (
		vc  *gocv.VideoCapture
		err error
	)
	if c.device == "" {
		vc, err = gocv.OpenVideoCapture(0)
	} else if idx, convErr := strconv.Atoi(c.device); convErr == nil {
		vc, err = gocv.OpenVideoCapture(idx)
	} else {
		vc, err = gocv.OpenVideoCapture(c.device)
	}
	if err != nil {
		return NewCameraError(c.device, ErrDeviceNotFound, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return NewCameraError(c.device, ErrDeviceNotFound, nil)
	}

	c.capture = vc
	c.frame = gocv.NewMat()
	return nil
}

// Grab implements FrameGrabber.
func (c *CameraGrabber) Grab(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, fmt.Errorf("capture: camera not open")
	}
	if ok := c.capture.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, nil
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.frame, []int{int(gocv.IMWriteJpegQuality), c.quality})
	if err != nil {
		return nil, fmt.Errorf("capture: encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Close implements FrameGrabber.
func (c *CameraGrabber) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	_ = c.frame.Close()
	err := c.capture.Close()
	c.capture = nil
	return err
}

var _ FrameGrabber = (*CameraGrabber)(nil)
