// Package web serves the browser dashboard: a JSON API for starting and
// stopping sessions, a websocket event stream fed by the session callbacks,
// websocket ingest for browser-captured stills, and /metrics.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-murmur/internal/config"
	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/capture"
	"github.com/teslashibe/go-murmur/pkg/hub"
	"github.com/teslashibe/go-murmur/pkg/session"
	"github.com/teslashibe/go-murmur/pkg/studio"
	"github.com/teslashibe/go-murmur/pkg/telemetry"
	"github.com/teslashibe/go-murmur/pkg/tools"
)

const shutdownTimeout = 5 * time.Second

// Session is the part of *session.Session the dashboard drives.
type Session interface {
	Start(ctx context.Context, req session.StartRequest) error
	Stop()
	Snapshot() session.Snapshot
	SelectVoice(voice string) error
}

// GoogleAuth runs the OAuth consent flow for the Gmail composer.
type GoogleAuth interface {
	AuthURL(state string) string
	HandleCallback(ctx context.Context, code string) error
	IsAuthenticated() bool
}

// Config configures the dashboard server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// StaticDir serves the dashboard assets when set.
	StaticDir string

	Session Session
	Store   config.Store
	Profile config.Profile

	// Events carries dashboard notifications. Nil creates a hub.
	Events *hub.Hub

	Dispatcher *tools.Dispatcher
	Studio     *studio.Studio
	Metrics    *telemetry.Metrics

	// Negotiator answers browser microphone offers. Nil disables /api/rtc.
	Negotiator audioio.Negotiator

	// Camera and Screen receive stills pushed over /ws/frames/:source.
	Camera *capture.BrowserGrabber
	Screen *capture.BrowserGrabber

	// Google enables the Gmail consent routes.
	Google GoogleAuth

	Logger *slog.Logger
}

// Server is the web dashboard server.
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	events *hub.Hub
	frames *hub.Hub

	stateMu    sync.Mutex
	oauthState string
}

// NewServer creates the dashboard server and registers its routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultListenAddr
	}
	if cfg.Profile.Name == "" {
		cfg.Profile = config.DefaultProfile()
	}
	if cfg.Store == nil {
		cfg.Store = config.NewMemoryStore()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "web"),
		events: cfg.Events,
		frames: hub.New("frames", logger),
	}
	if s.events == nil {
		s.events = hub.New("events", logger)
	}

	app := fiber.New(fiber.Config{
		AppName:               "Murmur Dashboard",
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024,
	})

	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.RegisterAPIRoutes(app.Group("/api"))
	s.RegisterRoutes(app)

	s.app = app
	return s
}

// RegisterRoutes registers the websocket and metrics routes.
func (s *Server) RegisterRoutes(app *fiber.App) {
	if s.cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.cfg.Metrics.Handler()))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/frames/:source", websocket.New(s.handleFramesWS))
}

// RegisterAPIRoutes registers the JSON API.
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/status", s.handleStatus)

	api.Post("/session/start", s.handleStart)
	api.Post("/session/stop", s.handleStop)

	api.Get("/voices", s.handleVoices)
	api.Get("/voices/:name/preview", s.handleVoicePreview)
	api.Put("/voice", s.handleSetVoice)

	api.Get("/mode", s.handleGetMode)
	api.Put("/mode", s.handleSetMode)

	api.Get("/tools", s.handleTools)

	api.Post("/rtc/offer", s.handleOffer)
	api.Post("/rtc/error", s.handleDeviceError)

	api.Get("/google/auth", s.handleGoogleAuth)
	api.Get("/google/callback", s.handleGoogleCallback)

	st := api.Group("/studio")
	st.Post("/image", s.handleImage)
	st.Post("/thumbnail", s.handleThumbnail)
	st.Post("/speech", s.handleSpeech)
	st.Post("/video", s.handleVideo)
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Events returns the dashboard event hub.
func (s *Server) Events() *hub.Hub {
	return s.events
}

// Run runs the hubs and serves HTTP until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.runHubs(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("dashboard shutting down")
		return s.app.ShutdownWithTimeout(shutdownTimeout)
	}
}

func (s *Server) runHubs(ctx context.Context) {
	go s.events.Run(ctx)
	go s.frames.Run(ctx)
}
