package audioio

import (
	"context"
	"io"
)

// Chunk represents a chunk of captured audio.
type Chunk struct {
	// Samples contains interleaved PCM16 samples.
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// Bytes returns the raw little-endian bytes of the chunk.
func (c *Chunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration returns the duration of this chunk in seconds.
func (c *Chunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start acquires the device and begins capture. Acquisition failures
	// are reported as *DeviceError wrapping ErrPermissionDenied,
	// ErrDeviceNotFound or ErrUnsupported.
	Start(ctx context.Context) error

	// Stop halts capture and releases the device.
	// It is safe to call Stop multiple times.
	Stop() error

	// Stream returns a channel that receives audio chunks in capture
	// order. The channel is closed when the source is stopped.
	Stream() <-chan Chunk

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "portaudio", "webrtc", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"`
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
