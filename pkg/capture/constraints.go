package capture

import (
	"fmt"
	"time"
)

// Constraints describe what to capture.
type Constraints struct {
	// Mode selects the inputs.
	Mode Mode

	// SampleRate of outbound frames in Hz.
	// Default: 16000
	SampleRate int

	// BlockSize is the number of samples per frame.
	// Default: 4096
	BlockSize int

	// Decay is the per-frame loudness release factor, in (0, 1).
	// Default: 0.7
	Decay float64

	// VideoFPS is the still sampling rate for camera and screen modes.
	// Default: 4
	VideoFPS float64

	// Device names the input device. Empty selects the default.
	Device string
}

// DefaultConstraints returns voice-mode constraints.
func DefaultConstraints() Constraints {
	return Constraints{
		Mode:       ModeVoice,
		SampleRate: 16000,
		BlockSize:  4096,
		Decay:      0.7,
		VideoFPS:   4,
	}
}

// WithMode returns a copy with the mode set.
func (c Constraints) WithMode(m Mode) Constraints {
	c.Mode = m
	return c
}

// Validate checks the constraints.
func (c *Constraints) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("capture: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("capture: block_size must be positive, got %d", c.BlockSize)
	}
	if c.Decay <= 0 || c.Decay >= 1 {
		return fmt.Errorf("capture: decay must be in (0, 1), got %v", c.Decay)
	}
	if c.Mode.HasVideo() && c.VideoFPS <= 0 {
		return fmt.Errorf("capture: video_fps must be positive, got %v", c.VideoFPS)
	}
	return nil
}

// BlockDuration returns the audio duration of one frame.
func (c *Constraints) BlockDuration() time.Duration {
	return time.Duration(float64(c.BlockSize) / float64(c.SampleRate) * float64(time.Second))
}

// VideoInterval returns the time between video stills.
func (c *Constraints) VideoInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.VideoFPS)
}
