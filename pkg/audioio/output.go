package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start begins audio playback.
	// After calling Start, audio can be written via Write.
	Start(ctx context.Context) error

	// Stop halts audio playback.
	// It is safe to call Stop multiple times.
	Stop() error

	// Write sends an audio chunk to the output device.
	// This may block if the output buffer is full.
	Write(ctx context.Context, chunk Chunk) error

	// Clear discards all buffered audio immediately.
	Clear() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "portaudio", "mock").
	Name() string

	io.Closer
}

// Output is a clocked playback device. Times are seconds on the output's
// own clock as reported by Now.
type Output interface {
	// Now returns the output clock.
	Now() float64

	// Schedule arranges for buf to start playing at the given time. A start
	// time in the past plays immediately.
	Schedule(buf Buffer, at float64) (Playing, error)

	io.Closer
}

// Playing is a handle to a scheduled buffer.
type Playing interface {
	// Stop silences the buffer. Stopping a finished buffer is a no-op.
	Stop()

	// Done is closed when the buffer finishes or is stopped.
	Done() <-chan struct{}
}

// DeviceOutput adapts a Sink to Output using the wall clock.
type DeviceOutput struct {
	sink   Sink
	logger *slog.Logger
	epoch  time.Time

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDeviceOutput starts sink and returns an Output whose clock begins at 0.
// The output owns sink from here on; it is closed if Start fails.
func NewDeviceOutput(ctx context.Context, sink Sink, logger *slog.Logger) (*DeviceOutput, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := sink.Start(ctx); err != nil {
		_ = sink.Close()
		return nil, err
	}

	octx, cancel := context.WithCancel(context.Background())
	return &DeviceOutput{
		sink:   sink,
		logger: logger,
		epoch:  time.Now(),
		ctx:    octx,
		cancel: cancel,
	}, nil
}

// Now returns seconds since the output was opened.
func (o *DeviceOutput) Now() float64 {
	return time.Since(o.epoch).Seconds()
}

// Schedule implements Output.
func (o *DeviceOutput) Schedule(buf Buffer, at float64) (Playing, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return nil, io.ErrClosedPipe
	}

	ctx, cancel := context.WithCancel(o.ctx)
	p := &devicePlaying{cancel: cancel, done: make(chan struct{})}

	go o.play(ctx, p, buf, at)
	return p, nil
}

func (o *DeviceOutput) play(ctx context.Context, p *devicePlaying, buf Buffer, at float64) {
	defer p.finish()

	if wait := time.Duration((at - o.Now()) * float64(time.Second)); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	chunk := Chunk{
		Samples:    buf.Interleaved(),
		SampleRate: buf.SampleRate,
		Channels:   len(buf.Channels),
	}

	o.writeMu.Lock()
	err := o.sink.Write(ctx, chunk)
	o.writeMu.Unlock()
	if err != nil {
		o.logger.Debug("output write failed", "backend", o.sink.Name(), "error", err)
		return
	}

	remaining := time.Duration((at + buf.Duration() - o.Now()) * float64(time.Second))
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		_ = o.sink.Clear()
	case <-timer.C:
	}
}

// Close stops all scheduled buffers and closes the sink.
func (o *DeviceOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	_ = o.sink.Clear()
	return o.sink.Close()
}

type devicePlaying struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (p *devicePlaying) Stop() {
	p.cancel()
}

func (p *devicePlaying) Done() <-chan struct{} {
	return p.done
}

func (p *devicePlaying) finish() {
	p.once.Do(func() { close(p.done) })
}

var _ Output = (*DeviceOutput)(nil)
