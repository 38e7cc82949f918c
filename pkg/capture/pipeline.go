package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-murmur/pkg/audioio"
)

// Frame is one fixed-size block of captured audio.
type Frame struct {
	// Seq numbers frames from 0 in capture order.
	Seq uint64

	// Samples is BlockSize mono PCM16 samples.
	Samples []int16

	// Level is the smoothed loudness after this frame.
	Level float64

	// Encoded is Samples in wire form.
	Encoded string

	SampleRate int
}

// Image is one encoded video still.
type Image struct {
	Seq      uint64
	MIMEType string
	Data     []byte
}

// FrameFunc receives audio frames on the capture goroutine.
type FrameFunc func(Frame)

// ImageFunc receives video stills on the sampler goroutine.
type ImageFunc func(Image)

// SourceOpener creates the audio source for one capture run.
type SourceOpener func(cfg audioio.Config) (audioio.Source, error)

// Config configures a Pipeline.
type Config struct {
	// OpenSource creates audio sources. Default: audioio.NewSource.
	OpenSource SourceOpener

	// Backend is passed to OpenSource. Default: auto.
	Backend audioio.Backend

	// Camera grabs stills in camera mode. Nil makes camera mode unsupported.
	Camera FrameGrabber

	// Screen grabs stills in screen mode. Nil makes screen mode unsupported.
	Screen FrameGrabber

	Logger *slog.Logger
}

// Pipeline starts capture runs.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Backend == "" {
		cfg.Backend = audioio.BackendAuto
	}
	if cfg.OpenSource == nil {
		cfg.OpenSource = func(ac audioio.Config) (audioio.Source, error) {
			return audioio.NewSource(ac, logger)
		}
	}
	return &Pipeline{cfg: cfg, logger: logger.With("component", "capture")}
}

// Supports reports whether the pipeline can capture in mode.
func (p *Pipeline) Supports(m Mode) bool {
	switch m {
	case ModeCamera:
		return p.cfg.Camera != nil
	case ModeScreen:
		return p.cfg.Screen != nil
	default:
		return true
	}
}

// Start acquires the input devices for c and begins producing frames.
// Device failures are returned as *DeviceError matching ErrPermissionDenied,
// ErrDeviceNotFound or ErrUnsupported; nothing is left running on error.
func (p *Pipeline) Start(ctx context.Context, c Constraints) (*Handle, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var grabber FrameGrabber
	switch c.Mode {
	case ModeCamera:
		grabber = p.cfg.Camera
	case ModeScreen:
		grabber = p.cfg.Screen
	}
	if c.Mode.HasVideo() && grabber == nil {
		return nil, audioio.NewDeviceError(string(c.Mode), ErrUnsupported, nil)
	}

	ac := audioio.DefaultConfig()
	ac.Backend = p.cfg.Backend
	ac.SampleRate = c.SampleRate
	ac.Device = c.Device

	src, err := p.cfg.OpenSource(ac)
	if err != nil {
		return nil, asDeviceError(string(ac.Backend), err)
	}
	if err := src.Start(ctx); err != nil {
		_ = src.Close()
		return nil, asDeviceError(src.Name(), err)
	}

	h := &Handle{
		constraints: c,
		source:      src,
		meter:       NewLevelMeter(c.Decay),
		framer:      newFramer(c.BlockSize),
		logger:      p.logger,
		done:        make(chan struct{}),
	}

	if grabber != nil {
		if err := grabber.Open(ctx); err != nil {
			_ = src.Stop()
			_ = src.Close()
			return nil, asDeviceError(string(c.Mode), err)
		}
		vctx, cancel := context.WithCancel(context.Background())
		h.video = grabber
		h.videoCancel = cancel
		h.videoDone = make(chan struct{})
		go h.sampleVideo(vctx, c.VideoInterval())
	}

	go h.run(src.Stream())

	p.logger.Info("capture started",
		"mode", c.Mode,
		"source", src.Name(),
		"sample_rate", c.SampleRate,
		"block_size", c.BlockSize,
	)
	return h, nil
}

// Handle controls one capture run.
type Handle struct {
	constraints Constraints
	source      audioio.Source
	meter       *LevelMeter
	framer      *framer
	logger      *slog.Logger

	mu        sync.Mutex
	frameSink FrameFunc
	imageSink ImageFunc

	seq      uint64
	imageSeq atomic.Uint64
	frames   atomic.Int64
	dropped  atomic.Int64

	video       FrameGrabber
	videoCancel context.CancelFunc
	videoDone   chan struct{}
	videoOnce   sync.Once

	stopOnce sync.Once
	done     chan struct{}
}

// SetFrameSink attaches fn as the frame consumer. Nil detaches.
func (h *Handle) SetFrameSink(fn FrameFunc) {
	h.mu.Lock()
	h.frameSink = fn
	h.mu.Unlock()
}

// SetImageSink attaches fn as the video still consumer. Nil detaches.
func (h *Handle) SetImageSink(fn ImageFunc) {
	h.mu.Lock()
	h.imageSink = fn
	h.mu.Unlock()
}

// Level returns the current smoothed loudness.
func (h *Handle) Level() float64 {
	return h.meter.Level()
}

// Frames returns the number of frames delivered to a sink.
func (h *Handle) Frames() int64 {
	return h.frames.Load()
}

// Dropped returns the number of frames produced with no sink attached.
func (h *Handle) Dropped() int64 {
	return h.dropped.Load()
}

// Constraints returns the constraints the run was started with.
func (h *Handle) Constraints() Constraints {
	return h.constraints
}

// Done is closed when the capture goroutine exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) run(stream <-chan audioio.Chunk) {
	defer close(h.done)

	for chunk := range stream {
		samples := chunk.Samples
		if chunk.Channels == 2 {
			samples = audioio.StereoToMono(samples)
		}
		if chunk.SampleRate > 0 && chunk.SampleRate != h.constraints.SampleRate {
			samples = audioio.Resample(samples, chunk.SampleRate, h.constraints.SampleRate)
		}
		h.framer.push(samples, h.emit)
	}
}

func (h *Handle) emit(block []int16) {
	frame := Frame{
		Seq:        h.seq,
		Samples:    block,
		Level:      h.meter.Update(audioio.RMS(block)),
		Encoded:    audioio.EncodeFrame(block),
		SampleRate: h.constraints.SampleRate,
	}
	h.seq++

	h.mu.Lock()
	sink := h.frameSink
	h.mu.Unlock()

	if sink == nil {
		h.dropped.Add(1)
		return
	}
	h.frames.Add(1)
	sink(frame)
}

func (h *Handle) sampleVideo(ctx context.Context, interval time.Duration) {
	defer close(h.videoDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		data, err := h.video.Grab(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Debug("video grab failed", "mode", h.constraints.Mode, "error", err)
			continue
		}
		if len(data) == 0 {
			continue
		}

		h.mu.Lock()
		sink := h.imageSink
		h.mu.Unlock()
		if sink == nil {
			continue
		}
		sink(Image{Seq: h.imageSeq.Add(1) - 1, MIMEType: "image/jpeg", Data: data})
	}
}

// StopVideo stops the video sampler and releases the grabber, leaving
// audio capture running. It is idempotent.
func (h *Handle) StopVideo() {
	if h.video == nil {
		return
	}
	h.videoOnce.Do(func() {
		h.videoCancel()
		<-h.videoDone
		if err := h.video.Close(); err != nil {
			h.logger.Debug("close video grabber", "error", err)
		}
	})
}

// Stop detaches the sinks, stops the video sampler and releases the
// audio device. It is idempotent and waits for the capture goroutine.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.SetFrameSink(nil)
		h.SetImageSink(nil)
		h.StopVideo()

		if err := h.source.Stop(); err != nil {
			h.logger.Debug("stop source", "error", err)
		}
		if err := h.source.Close(); err != nil {
			h.logger.Debug("close source", "error", err)
		}
		<-h.done
		h.meter.Reset()

		h.logger.Info("capture stopped",
			"frames", h.frames.Load(),
			"dropped", h.dropped.Load(),
		)
	})
}

// Shared adapts a long-lived source, such as the browser WebRTC bridge, so
// capture runs stop it without closing it.
func Shared(src audioio.Source) SourceOpener {
	return func(audioio.Config) (audioio.Source, error) {
		return sharedSource{src}, nil
	}
}

type sharedSource struct {
	audioio.Source
}

func (s sharedSource) Close() error {
	return s.Source.Stop()
}

// String describes the handle for logs.
func (h *Handle) String() string {
	return fmt.Sprintf("capture(%s, %s)", h.constraints.Mode, h.source.Name())
}
