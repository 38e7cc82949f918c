package audioio

import (
	"context"
	"fmt"
	"log/slog"
)

// NewSource creates a new audio source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendPortAudio:
		return newPortAudioSource(cfg, logger)
	case BackendWebRTC:
		return newWebRTCSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewSink creates a new audio sink with the given configuration.
// WebRTC is capture-only, so it falls back to the best local backend.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto || backend == BackendWebRTC {
		backend = detectBestBackend()
	}

	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendPortAudio:
		return newPortAudioSink(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewOutput opens a clocked playback output. The mock backend yields a
// MockOutput whose clock only moves when advanced.
func NewOutput(ctx context.Context, cfg Config, logger *slog.Logger) (Output, error) {
	if cfg.Backend == BackendMock {
		return NewMockOutput(), nil
	}
	sink, err := NewSink(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewDeviceOutput(ctx, sink, logger)
}

// detectBestBackend returns the best backend compiled into this binary.
func detectBestBackend() Backend {
	if portaudioAvailable {
		return BackendPortAudio
	}
	return BackendMock
}

// AvailableBackends returns the list of backends compiled into this binary.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if portaudioAvailable {
		backends = append(backends, BackendPortAudio)
	}
	if webrtcAvailable {
		backends = append(backends, BackendWebRTC)
	}
	return backends
}
