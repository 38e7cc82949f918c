// Package assistant wires the capture pipeline, live transport, session,
// tool dispatcher, studio and dashboard into one runnable application.
package assistant

import (
	"fmt"
	"os"

	"github.com/teslashibe/go-murmur/internal/config"
	"github.com/teslashibe/go-murmur/pkg/audioio"
)

// Transports for the live session.
const (
	TransportGenAI     = "genai"
	TransportWebsocket = "websocket"
)

// Camera sources.
const (
	CameraBrowser = "browser"
	CameraLocal   = "local"
	CameraOff     = "off"
)

// Email composers.
const (
	EmailMailto = "mailto"
	EmailGmail  = "gmail"
)

// Config holds all configuration for the application.
// Flag parsing is done in cmd/murmur/main.go; this struct is data only.
type Config struct {
	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string

	// ListenAddr is the dashboard listen address.
	ListenAddr string

	// StaticDir serves dashboard assets when set.
	StaticDir string

	// ProfilePath points at a YAML profile. Empty uses the built-in profile.
	ProfilePath string

	// StatePath is where voice and mode choices persist.
	StatePath string

	// AudioBackend selects the microphone and speaker backend.
	AudioBackend audioio.Backend

	// Transport is TransportGenAI or TransportWebsocket.
	Transport string

	// Camera is CameraBrowser, CameraLocal or CameraOff.
	Camera       string
	CameraDevice string

	// Email is EmailMailto or EmailGmail.
	Email string

	// AutoStart starts a session in the persisted mode at launch.
	AutoStart bool

	// API keys (typically from environment variables).
	APIKey string

	// Google OAuth (for Gmail drafts).
	GoogleClientID     string
	GoogleClientSecret string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:     config.DefaultLogLevel,
		ListenAddr:   config.DefaultListenAddr,
		AudioBackend: audioio.BackendAuto,
		Transport:    TransportGenAI,
		Camera:       CameraBrowser,
		Email:        EmailMailto,
	}
}

// LoadEnvConfig loads configuration values from environment variables.
// Call this after flag parsing; flags that were set win.
func (c *Config) LoadEnvConfig() {
	c.APIKey = config.APIKey()
	c.GoogleClientID = os.Getenv(config.EnvGoogleClientID)
	c.GoogleClientSecret = os.Getenv(config.EnvGoogleClientSecret)

	if c.ProfilePath == "" {
		c.ProfilePath = os.Getenv(config.EnvProfile)
	}
	if c.StatePath == "" {
		c.StatePath = config.Getenv(config.EnvStatePath, config.DefaultStatePath())
	}
	if c.ListenAddr == "" {
		c.ListenAddr = config.Getenv(config.EnvListenAddr, config.DefaultListenAddr)
	}
}

// Validate checks that the configuration is usable. A missing API key is
// not an error here; it is reported when a session starts.
func (c *Config) Validate() error {
	switch c.AudioBackend {
	case audioio.BackendAuto, audioio.BackendPortAudio, audioio.BackendWebRTC, audioio.BackendMock:
	default:
		return &ConfigError{Field: "AudioBackend", Message: fmt.Sprintf("unknown audio backend %q", c.AudioBackend)}
	}
	switch c.Transport {
	case TransportGenAI, TransportWebsocket:
	default:
		return &ConfigError{Field: "Transport", Message: fmt.Sprintf("unknown transport %q", c.Transport)}
	}
	switch c.Camera {
	case CameraBrowser, CameraLocal, CameraOff:
	default:
		return &ConfigError{Field: "Camera", Message: fmt.Sprintf("unknown camera source %q", c.Camera)}
	}
	switch c.Email {
	case EmailMailto:
	case EmailGmail:
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			return &ConfigError{Field: "Email", Message: "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required for gmail drafts"}
		}
	default:
		return &ConfigError{Field: "Email", Message: fmt.Sprintf("unknown email composer %q", c.Email)}
	}
	if c.ListenAddr == "" {
		return &ConfigError{Field: "ListenAddr", Message: "listen address is required"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
