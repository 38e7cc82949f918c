package assistant

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-murmur/internal/config"
	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/capture"
	"github.com/teslashibe/go-murmur/pkg/session"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv(config.EnvGeminiKey, "")
	t.Setenv(config.EnvGoogleKey, "")
	t.Setenv(config.EnvProfile, "")

	cfg := DefaultConfig()
	cfg.AudioBackend = audioio.BackendMock
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.StatePath = filepath.Join(t.TempDir(), "state.yaml")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad backend", func(c *Config) { c.AudioBackend = "alsa" }, "AudioBackend"},
		{"bad transport", func(c *Config) { c.Transport = "grpc" }, "Transport"},
		{"bad camera", func(c *Config) { c.Camera = "ip" }, "Camera"},
		{"gmail without oauth", func(c *Config) { c.Email = EmailGmail }, "Email"},
		{"gmail with oauth", func(c *Config) {
			c.Email = EmailGmail
			c.GoogleClientID, c.GoogleClientSecret = "id", "secret"
		}, ""},
		{"bad email", func(c *Config) { c.Email = "smtp" }, "Email"},
		{"no listen address", func(c *Config) { c.ListenAddr = "" }, "ListenAddr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantErr, ce.Field)
		})
	}
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv(config.EnvGeminiKey, "gemini")
	t.Setenv(config.EnvStatePath, "/tmp/murmur-state.yaml")
	t.Setenv(config.EnvGoogleClientID, "client")

	cfg := DefaultConfig()
	cfg.LoadEnvConfig()
	assert.Equal(t, "gemini", cfg.APIKey)
	assert.Equal(t, "/tmp/murmur-state.yaml", cfg.StatePath)
	assert.Equal(t, "client", cfg.GoogleClientID)

	cfg = DefaultConfig()
	cfg.StatePath = "flag.yaml"
	cfg.LoadEnvConfig()
	assert.Equal(t, "flag.yaml", cfg.StatePath)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport = "carrier-pigeon"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestInitWiresDashboard(t *testing.T) {
	app, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	defer app.Shutdown()

	resp, err := app.Server().App().Test(httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Server().App().Test(httptest.NewRequest("GET", "/api/tools", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// Without an API key the studio stays disabled.
	resp, err = app.Server().App().Test(httptest.NewRequest("POST", "/api/studio/image", nil))
	require.NoError(t, err)
	assert.Equal(t, 501, resp.StatusCode)

	assert.NotNil(t, app.Metrics())
	assert.Equal(t, session.StateInactive, app.Session().State())
}

func TestStartSessionWithoutKey(t *testing.T) {
	app, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	defer app.Shutdown()

	err = app.StartSession(context.Background(), "")
	assert.True(t, session.IsConfigurationError(err))
	assert.Equal(t, session.StateInactive, app.Session().State())

	err = app.StartSession(context.Background(), "hologram")
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	app, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	defer app.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConstraintsFrom(t *testing.T) {
	c := constraintsFrom(config.AudioDefaults{BlockSize: 2048, VideoFPS: 1})
	assert.Equal(t, 2048, c.BlockSize)
	assert.Equal(t, 1.0, c.VideoFPS)
	assert.Equal(t, 16000, c.SampleRate)
	assert.Equal(t, 0.7, c.Decay)
	assert.Equal(t, capture.ModeVoice, c.Mode)
}

func TestDashboardURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", dashboardURL(":8080"))
	assert.Equal(t, "http://127.0.0.1:9000", dashboardURL("127.0.0.1:9000"))
}
