// Package audioio provides audio capture and playback for go-murmur, plus
// the PCM wire codec shared by the capture and playback paths.
//
// This package supports multiple backends:
//   - PortAudio (build tag "portaudio") - local microphone and speaker
//   - WebRTC (build tag "webrtc") - microphone bridged from the browser UI
//   - Mock - CI/testing without hardware, with a manually driven clock
//
// The backend is selected via configuration; BackendAuto picks PortAudio
// when it was compiled in and the mock otherwise.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects the best backend compiled into this binary.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for local device I/O.
	BackendPortAudio Backend = "portaudio"
	// BackendWebRTC receives microphone audio from a browser peer.
	BackendWebRTC Backend = "webrtc"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Standard rates used by the Live API.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000 for capture, 24000 for playback
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of device buffers.
	// Default: 20ms
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the platform-specific device name. Empty selects the
	// system default.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a capture Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     InputSampleRate,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// DefaultOutputConfig returns a playback Config.
func DefaultOutputConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = OutputSampleRate
	return cfg
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per device buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
