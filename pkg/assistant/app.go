package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-murmur/internal/config"
	"github.com/teslashibe/go-murmur/internal/httpc"
	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/capture"
	"github.com/teslashibe/go-murmur/pkg/hub"
	"github.com/teslashibe/go-murmur/pkg/live"
	"github.com/teslashibe/go-murmur/pkg/session"
	"github.com/teslashibe/go-murmur/pkg/studio"
	"github.com/teslashibe/go-murmur/pkg/telemetry"
	"github.com/teslashibe/go-murmur/pkg/tools"
	"github.com/teslashibe/go-murmur/pkg/web"
)

// latencyHistory is the number of turns kept for latency averages.
const latencyHistory = 50

// App is the main application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	profile config.Profile
	store   config.Store

	// Capture
	source   audioio.Source
	pipeline *capture.Pipeline
	camera   *capture.BrowserGrabber
	screen   *capture.BrowserGrabber

	// Conversation
	session    *session.Session
	dispatcher *tools.Dispatcher
	actions    *web.UIActions
	gmail      *tools.GmailComposer

	// Telemetry
	metrics *telemetry.Metrics
	latency *telemetry.LatencyTracker

	// Dashboard
	events *hub.Hub
	server *web.Server
	studio *studio.Studio
}

// New creates a new application with the given configuration.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	// Apply environment overrides
	cfg.LoadEnvConfig()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &App{
		config: cfg,
		logger: logger.With("component", "assistant"),
	}, nil
}

// Init initializes all components.
// Call this after New() and before Run().
func (a *App) Init(ctx context.Context) error {
	profile, err := config.LoadProfile(a.config.ProfilePath)
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	a.profile = profile

	store, err := config.OpenFileStore(a.config.StatePath)
	if err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	a.store = store

	a.metrics = telemetry.NewMetrics("murmur")
	a.latency = telemetry.NewLatencyTracker(latencyHistory)
	a.events = hub.New("events", a.logger)

	if err := a.initCapture(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := a.initTools(); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	a.initSession()
	a.initStudio(ctx)
	a.initServer()

	a.logger.Info("initialized",
		"profile", profile.Name,
		"audio", a.config.AudioBackend,
		"transport", a.config.Transport,
		"camera", a.config.Camera,
		"email", a.config.Email,
		"has_api_key", a.config.APIKey != "",
	)
	return nil
}

// Run serves the dashboard until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gctx)
	})

	if a.config.AutoStart {
		g.Go(func() error {
			if err := a.StartSession(gctx, ""); err != nil {
				a.logger.Warn("auto-start failed", "error", err)
			}
			return nil
		})
	}

	a.logger.Info("murmur is ready", "dashboard", dashboardURL(a.config.ListenAddr))
	return g.Wait()
}

// StartSession starts a session in mode, or the persisted mode when empty.
func (a *App) StartSession(ctx context.Context, mode string) error {
	resolved := config.Resolve(a.store, a.profile)
	if mode == "" {
		mode = resolved.Mode
	}
	m, err := capture.ParseMode(mode)
	if err != nil {
		return err
	}
	return a.session.Start(ctx, session.StartRequest{
		Mode:         m,
		Voice:        resolved.Voice,
		Credential:   resolved.Credential,
		SystemPrompt: a.profile.Prompt(string(m)),
	})
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	if a.session != nil {
		a.session.Stop()
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.Debug("close audio source", "error", err)
		}
	}
	a.logger.Info("goodbye")
}

// Session returns the session.
func (a *App) Session() *session.Session {
	return a.session
}

// Server returns the dashboard server.
func (a *App) Server() *web.Server {
	return a.server
}

// Metrics returns the metrics collectors.
func (a *App) Metrics() *telemetry.Metrics {
	return a.metrics
}

func (a *App) initCapture() error {
	pc := capture.Config{
		Backend: a.config.AudioBackend,
		Logger:  a.logger,
	}

	// The browser microphone is one long-lived peer shared by every run.
	if a.config.AudioBackend == audioio.BackendWebRTC {
		acfg := audioio.DefaultConfig()
		acfg.Backend = audioio.BackendWebRTC
		src, err := audioio.NewSource(acfg, a.logger)
		if err != nil {
			return err
		}
		a.source = src
		pc.OpenSource = capture.Shared(src)
	}

	a.screen = capture.NewBrowserGrabber()
	pc.Screen = a.screen

	switch a.config.Camera {
	case CameraLocal:
		cam, err := capture.NewCameraGrabber(a.config.CameraDevice, 0)
		if err != nil {
			a.logger.Warn("local camera unavailable, using browser camera", "error", err)
			a.camera = capture.NewBrowserGrabber()
			pc.Camera = a.camera
		} else {
			pc.Camera = cam
		}
	case CameraBrowser:
		a.camera = capture.NewBrowserGrabber()
		pc.Camera = a.camera
	}

	a.pipeline = capture.NewPipeline(pc)
	return nil
}

func (a *App) initTools() error {
	a.actions = &web.UIActions{Events: a.events, Store: a.store}

	var composer tools.Composer = tools.MailtoComposer{Open: a.actions.OpenLink}
	if a.config.Email == EmailGmail {
		gmail, err := tools.NewGmailComposer(tools.GmailConfig{
			ClientID:     a.config.GoogleClientID,
			ClientSecret: a.config.GoogleClientSecret,
			RedirectURL:  dashboardURL(a.config.ListenAddr) + "/api/google/callback",
			HTTPClient:   httpc.Client,
		})
		if err != nil {
			return err
		}
		a.gmail = gmail
		composer = gmail
	}

	a.dispatcher = tools.NewDispatcher(tools.Config{
		Actions:  a.actions,
		Composer: composer,
		Voices:   a.profile.Voices,
		Views:    a.profile.Views,
		Logger:   a.logger,
	})
	return nil
}

func (a *App) initSession() {
	var dialer live.Dialer
	switch a.config.Transport {
	case TransportWebsocket:
		dialer = &live.WebsocketDialer{Logger: a.logger}
	default:
		dialer = &live.GenAIDialer{HTTPClient: httpc.Client, Logger: a.logger}
	}

	backend := a.config.AudioBackend
	a.session = session.New(session.Config{
		Dialer:      dialer,
		Capture:     a.pipeline,
		Constraints: constraintsFrom(a.profile.Audio),
		OpenOutput: func(ctx context.Context) (audioio.Output, error) {
			cfg := audioio.DefaultOutputConfig()
			cfg.Backend = backend
			if rate := a.profile.Audio.OutputSampleRate; rate > 0 {
				cfg.SampleRate = rate
			}
			return audioio.NewOutput(ctx, cfg, a.logger)
		},
		Dispatcher: a.dispatcher,
		Model:      a.profile.LiveModel,
		Metrics:    a.metrics,
		Latency:    a.latency,
		Callbacks:  web.SessionCallbacks(a.events, a.logCallbacks()),
		Logger:     a.logger,
	})
	a.actions.Session = a.session
}

// initStudio builds the studio when an API key is configured. Without
// one the studio routes report that they are not configured.
func (a *App) initStudio(ctx context.Context) {
	if a.config.APIKey == "" {
		return
	}
	opts := []studio.Option{
		studio.WithAPIKey(a.config.APIKey),
		studio.WithModels(a.profile.Studio.ImageModel, a.profile.Studio.SpeechModel, a.profile.Studio.VideoModel),
		studio.WithLogger(a.logger),
	}
	provider, err := studio.NewGenAI(ctx, opts...)
	if err != nil {
		a.logger.Warn("studio disabled", "error", err)
		return
	}
	a.studio = studio.New(provider, opts...)
}

func (a *App) initServer() {
	cfg := web.Config{
		Addr:       a.config.ListenAddr,
		StaticDir:  a.config.StaticDir,
		Session:    a.session,
		Store:      a.store,
		Profile:    a.profile,
		Events:     a.events,
		Dispatcher: a.dispatcher,
		Metrics:    a.metrics,
		Camera:     a.camera,
		Screen:     a.screen,
		Logger:     a.logger,
	}
	if a.studio != nil {
		cfg.Studio = a.studio
	}
	if a.gmail != nil {
		cfg.Google = a.gmail
	}
	if neg, ok := a.source.(audioio.Negotiator); ok {
		cfg.Negotiator = neg
	}
	a.server = web.NewServer(cfg)
}

// logCallbacks logs the conversation as it happens.
func (a *App) logCallbacks() session.Callbacks {
	return session.Callbacks{
		OnEntry: func(e session.Entry) {
			a.logger.Info("transcript", "speaker", e.Speaker, "text", e.Text)
		},
		OnToolCall: func(name, result string) {
			a.logger.Info("tool call", "tool", name, "result", result)
		},
		OnVoiceSelected: func(voice string) {
			a.logger.Info("voice selected for next session", "voice", voice)
		},
		OnError: func(err error) {
			var te *live.TransportError
			if errors.As(err, &te) {
				a.logger.Error("session ended by transport", "op", te.Op, "error", te.Err)
				return
			}
			a.logger.Error("session error", "error", err)
		},
	}
}

func constraintsFrom(ad config.AudioDefaults) capture.Constraints {
	c := capture.DefaultConstraints()
	if ad.InputSampleRate > 0 {
		c.SampleRate = ad.InputSampleRate
	}
	if ad.BlockSize > 0 {
		c.BlockSize = ad.BlockSize
	}
	if ad.LevelDecay > 0 {
		c.Decay = ad.LevelDecay
	}
	if ad.VideoFPS > 0 {
		c.VideoFPS = ad.VideoFPS
	}
	return c
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
