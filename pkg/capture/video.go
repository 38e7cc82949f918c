package capture

import (
	"context"
	"sync"
)

// FrameGrabber produces JPEG stills from a camera or screen.
type FrameGrabber interface {
	// Open acquires the device. Failures are reported like audio sources.
	Open(ctx context.Context) error

	// Grab returns the current still as JPEG. Empty data means no frame yet.
	Grab(ctx context.Context) ([]byte, error)

	// Close releases the device.
	Close() error
}

// BrowserGrabber holds the latest still pushed by the browser UI, for
// screen sharing and browser-side cameras.
type BrowserGrabber struct {
	mu     sync.Mutex
	latest []byte
	open   bool
	err    *DeviceError
}

// NewBrowserGrabber creates an empty grabber.
func NewBrowserGrabber() *BrowserGrabber {
	return &BrowserGrabber{}
}

// Push stores a JPEG still. Stills pushed while closed are discarded.
func (b *BrowserGrabber) Push(jpeg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return
	}
	b.latest = jpeg
}

// ReportDeviceError records a getDisplayMedia/getUserMedia failure; the
// next Open returns it.
func (b *BrowserGrabber) ReportDeviceError(err *DeviceError) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Open implements FrameGrabber.
func (b *BrowserGrabber) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		err := b.err
		b.err = nil
		return err
	}
	b.open = true
	b.latest = nil
	return nil
}

// Grab implements FrameGrabber.
func (b *BrowserGrabber) Grab(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.latest
	b.latest = nil
	return data, nil
}

// Close implements FrameGrabber.
func (b *BrowserGrabber) Close() error {
	b.mu.Lock()
	b.open = false
	b.latest = nil
	b.mu.Unlock()
	return nil
}

var _ FrameGrabber = (*BrowserGrabber)(nil)
