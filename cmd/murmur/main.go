// Murmur - real-time voice and vision assistant.
// Streams microphone (and optionally camera or screen) input to a hosted
// model and plays its spoken replies, with a browser dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-murmur/internal/config"
	"github.com/teslashibe/go-murmur/internal/log"
	"github.com/teslashibe/go-murmur/pkg/assistant"
	"github.com/teslashibe/go-murmur/pkg/audioio"
)

func main() {
	cfg := parseFlags()

	log.Init(cfg.LogLevel)
	logger := log.L()

	app, err := assistant.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, app)
	cancel()
	if err != nil {
		logger.Error("murmur failed", "error", err)
		os.Exit(1)
	}
}

// lifecycle is the part of assistant.App that main drives.
type lifecycle interface {
	Init(ctx context.Context) error
	Run(ctx context.Context) error
	Shutdown()
}

// run initializes and runs app, releasing it on every exit path.
func run(ctx context.Context, app lifecycle) error {
	defer app.Shutdown()

	if err := app.Init(ctx); err != nil {
		return fmt.Errorf("initialization: %w", err)
	}
	return app.Run(ctx)
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() assistant.Config {
	// A missing .env is fine; a malformed one is reported once logging is up.
	envErr := config.LoadEnv()

	cfg := assistant.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	listen := flag.String("listen", "", "Dashboard listen address (overrides MURMUR_LISTEN)")
	profile := flag.String("profile", "", "Assistant profile YAML (overrides MURMUR_PROFILE)")
	state := flag.String("state", "", "State file for voice and mode choices (overrides MURMUR_STATE)")
	static := flag.String("static", "", "Directory with dashboard assets")
	backend := flag.String("audio", string(cfg.AudioBackend), "Audio backend: auto, portaudio, webrtc, mock")
	transport := flag.String("transport", cfg.Transport, "Live transport: genai, websocket")
	camera := flag.String("camera", cfg.Camera, "Camera source: browser, local, off")
	cameraDevice := flag.String("camera-device", "", "Local camera device (index or path)")
	email := flag.String("email", cfg.Email, "Email drafts: mailto, gmail")
	autoStart := flag.Bool("start", false, "Start a session at launch")
	flag.Parse()

	cfg.LogLevel = config.Getenv(config.EnvLogLevel, config.DefaultLogLevel)
	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.ListenAddr = *listen
	cfg.ProfilePath = *profile
	cfg.StatePath = *state
	cfg.StaticDir = *static
	cfg.AudioBackend = audioio.Backend(*backend)
	cfg.Transport = *transport
	cfg.Camera = *camera
	cfg.CameraDevice = *cameraDevice
	cfg.Email = *email
	cfg.AutoStart = *autoStart

	if envErr != nil {
		log.Init(cfg.LogLevel)
		log.Warn("could not load .env", "error", envErr)
	}
	return cfg
}
