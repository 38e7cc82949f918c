//go:build portaudio

package audioio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portaudioAvailable = true

var (
	paOnce sync.Once
	paErr  error
)

// initPortAudio initializes the library once per process. Terminate is left
// to process exit since sources and sinks come and go per session.
func initPortAudio() error {
	paOnce.Do(func() {
		paErr = portaudio.Initialize()
	})
	return paErr
}

// classifyPortAudioError maps a PortAudio open failure to a sentinel.
func classifyPortAudioError(err error) error {
	switch {
	case errors.Is(err, portaudio.InvalidDevice):
		return ErrDeviceNotFound
	case strings.Contains(strings.ToLower(err.Error()), "permission"):
		return ErrPermissionDenied
	default:
		return ErrDeviceNotFound
	}
}

// PortAudioSource captures from the default (or configured) input device.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	stream   *portaudio.Stream
	streamCh chan Chunk
	stopCh   chan struct{}
	done     chan struct{}
	running  bool
	closed   bool

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &PortAudioSource{cfg: cfg, logger: logger, streamCh: make(chan Chunk)}, nil
}

func openStream(cfg Config, input bool, buf []int16) (*portaudio.Stream, error) {
	if cfg.Device == "" {
		if input {
			return portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.BufferSize(), buf)
		}
		return portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), cfg.BufferSize(), buf)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name != cfg.Device {
			continue
		}
		var params portaudio.StreamParameters
		if input {
			params = portaudio.LowLatencyParameters(d, nil)
			params.Input.Channels = cfg.Channels
		} else {
			params = portaudio.LowLatencyParameters(nil, d)
			params.Output.Channels = cfg.Channels
		}
		params.SampleRate = float64(cfg.SampleRate)
		params.FramesPerBuffer = cfg.BufferSize()
		return portaudio.OpenStream(params, buf)
	}
	return nil, portaudio.InvalidDevice
}

func (s *PortAudioSource) deviceName() string {
	if s.cfg.Device == "" {
		return "portaudio:default"
	}
	return "portaudio:" + s.cfg.Device
}

// Start opens the input stream and begins the read loop.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("audioio: source closed")
	}
	if s.running {
		return nil
	}

	if err := initPortAudio(); err != nil {
		return NewDeviceError(s.deviceName(), ErrUnsupported, err)
	}

	in := make([]int16, s.cfg.BufferSize()*s.cfg.Channels)
	stream, err := openStream(s.cfg, true, in)
	if err != nil {
		return NewDeviceError(s.deviceName(), classifyPortAudioError(err), err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return NewDeviceError(s.deviceName(), classifyPortAudioError(err), err)
	}

	s.stream = stream
	s.running = true
	s.streamCh = make(chan Chunk, 32)
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	go s.readLoop(ctx, stream, in, s.streamCh, s.stopCh, s.done)

	s.logger.Info("portaudio source started",
		"device", s.deviceName(),
		"sample_rate", s.cfg.SampleRate,
		"frames_per_buffer", s.cfg.BufferSize(),
	)
	return nil
}

func (s *PortAudioSource) readLoop(ctx context.Context, stream *portaudio.Stream, in []int16, out chan Chunk, stopCh, done chan struct{}) {
	defer close(done)
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.overruns.Add(1)
				continue
			}
			s.logger.Warn("portaudio read failed", "error", err)
			return
		}

		samples := make([]int16, len(in))
		copy(samples, in)

		select {
		case out <- Chunk{Samples: samples, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop halts capture and closes the stream.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stream := s.stream
	s.stream = nil
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	if err := stream.Stop(); err != nil {
		s.logger.Debug("portaudio stop", "error", err)
	}
	return stream.Close()
}

// Stream returns the chunk channel for the current run.
func (s *PortAudioSource) Stream() <-chan Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *PortAudioSource) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSource) Name() string { return string(BackendPortAudio) }

// Close stops capture. The source cannot be restarted.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns source statistics.
func (s *PortAudioSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     s.Name(),
	}
}

// PortAudioSink plays to the default (or configured) output device.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	out     []int16
	running bool
	closed  bool
	cleared atomic.Uint64
}

func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return &PortAudioSink{cfg: cfg, logger: logger}, nil
}

// Start opens the output stream.
func (s *PortAudioSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("audioio: sink closed")
	}
	if s.running {
		return nil
	}
	if err := initPortAudio(); err != nil {
		return NewDeviceError("portaudio:output", ErrUnsupported, err)
	}

	s.out = make([]int16, s.cfg.BufferSize()*s.cfg.Channels)
	stream, err := openStream(s.cfg, false, s.out)
	if err != nil {
		return NewDeviceError("portaudio:output", classifyPortAudioError(err), err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return NewDeviceError("portaudio:output", classifyPortAudioError(err), err)
	}
	s.stream = stream
	s.running = true
	return nil
}

// Stop closes the output stream.
func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	_ = s.stream.Stop()
	err := s.stream.Close()
	s.stream = nil
	return err
}

// Write plays chunk, blocking until it has been handed to the device.
// A Clear during Write abandons the rest of the chunk.
func (s *PortAudioSink) Write(ctx context.Context, chunk Chunk) error {
	gen := s.cleared.Load()
	samples := chunk.Samples
	if chunk.SampleRate != s.cfg.SampleRate && chunk.Channels == 1 {
		samples = Resample(samples, chunk.SampleRate, s.cfg.SampleRate)
	}

	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.cleared.Load() != gen {
			return nil
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return fmt.Errorf("audioio: sink not running")
		}
		n := copy(s.out, samples)
		for i := n; i < len(s.out); i++ {
			s.out[i] = 0
		}
		err := s.stream.Write()
		s.mu.Unlock()

		if err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return err
		}
		samples = samples[n:]
	}
	return nil
}

// Clear abandons any in-progress Write.
func (s *PortAudioSink) Clear() error {
	s.cleared.Add(1)
	return nil
}

// Config returns the audio configuration.
func (s *PortAudioSink) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSink) Name() string { return string(BackendPortAudio) }

// Close stops playback. The sink cannot be restarted.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

var (
	_ SourceWithStats = (*PortAudioSource)(nil)
	_ Sink            = (*PortAudioSink)(nil)
)
