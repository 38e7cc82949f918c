package studio

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds studio configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	APIKey     string
	HTTPClient *http.Client

	ImageModel  string
	SpeechModel string
	VideoModel  string

	// PollInterval is the delay between video job polls.
	PollInterval time.Duration

	// VideoTimeout bounds a whole video generation.
	VideoTimeout time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring the studio.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithHTTPClient sets the HTTP client used by the provider.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithModels overrides the generation models. Empty names keep the default.
func WithModels(image, speech, video string) Option {
	return func(c *Config) {
		if image != "" {
			c.ImageModel = image
		}
		if speech != "" {
			c.SpeechModel = speech
		}
		if video != "" {
			c.VideoModel = video
		}
	}
}

// WithPolling sets the video poll interval and overall timeout.
func WithPolling(interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
		c.VideoTimeout = timeout
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		ImageModel:   "imagen-3.0-generate-002",
		SpeechModel:  "gemini-2.5-flash-preview-tts",
		VideoModel:   "veo-2.0-generate-001",
		PollInterval: 10 * time.Second,
		VideoTimeout: 5 * time.Minute,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
