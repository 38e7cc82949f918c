package web

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-murmur/internal/config"
	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/capture"
	"github.com/teslashibe/go-murmur/pkg/hub"
	"github.com/teslashibe/go-murmur/pkg/session"
	"github.com/teslashibe/go-murmur/pkg/studio"
)

// Status is the body of GET /api/status.
type Status struct {
	Session   session.Snapshot  `json:"session"`
	Mode      string            `json:"mode"`
	Voice     string            `json:"voice"`
	Modes     []capture.Mode    `json:"modes"`
	Views     []string          `json:"views"`
	Clients   int               `json:"clients"`
	Gmail     bool              `json:"gmail"`
	Backends  []audioio.Backend `json:"backends"`
	HasAPIKey bool              `json:"has_api_key"`
}

// handleStatus returns the session snapshot and the persisted choices.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resolved := config.Resolve(s.cfg.Store, s.cfg.Profile)
	st := Status{
		Session:   s.cfg.Session.Snapshot(),
		Mode:      resolved.Mode,
		Voice:     resolved.Voice,
		Modes:     capture.Modes,
		Views:     s.cfg.Profile.Views,
		Clients:   s.events.ClientCount(),
		Backends:  audioio.AvailableBackends(),
		HasAPIKey: resolved.Credential != "",
	}
	if s.cfg.Google != nil {
		st.Gmail = s.cfg.Google.IsAuthenticated()
	}
	return c.JSON(st)
}

// StartRequest is the body of POST /api/session/start. Empty fields fall
// back to the persisted choices.
type StartRequest struct {
	Mode  string `json:"mode"`
	Voice string `json:"voice"`
}

// handleStart starts a session and returns its snapshot.
func (s *Server) handleStart(c *fiber.Ctx) error {
	var req StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	resolved := config.Resolve(s.cfg.Store, s.cfg.Profile)
	if req.Mode == "" {
		req.Mode = resolved.Mode
	}
	if req.Voice == "" {
		req.Voice = resolved.Voice
	}

	mode, err := capture.ParseMode(req.Mode)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if !s.cfg.Profile.HasVoice(req.Voice) {
		return badRequest(c, "unknown voice "+req.Voice)
	}

	err = s.cfg.Session.Start(c.UserContext(), session.StartRequest{
		Mode:         mode,
		Voice:        req.Voice,
		Credential:   resolved.Credential,
		SystemPrompt: s.cfg.Profile.Prompt(string(mode)),
	})
	if err != nil {
		s.logger.Warn("session start failed", "mode", mode, "error", err)
		return fail(c, err)
	}

	if err := s.cfg.Store.Set(config.KeyMode, string(mode)); err != nil {
		s.logger.Warn("persist mode", "error", err)
	}
	return c.JSON(s.cfg.Session.Snapshot())
}

// handleStop stops the session. Stopping an inactive session succeeds.
func (s *Server) handleStop(c *fiber.Ctx) error {
	s.cfg.Session.Stop()
	return c.JSON(s.cfg.Session.Snapshot())
}

// Voice is one entry of GET /api/voices.
type Voice struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// handleVoices lists the voice registry with 1-based numbers.
func (s *Server) handleVoices(c *fiber.Ctx) error {
	selected := config.Resolve(s.cfg.Store, s.cfg.Profile).Voice
	voices := make([]Voice, 0, len(s.cfg.Profile.Voices))
	for i, name := range s.cfg.Profile.Voices {
		voices = append(voices, Voice{Number: i + 1, Name: name, Selected: name == selected})
	}
	return c.JSON(fiber.Map{
		"voices":   voices,
		"selected": selected,
	})
}

// handleVoicePreview renders a sample sentence in the named voice as WAV.
func (s *Server) handleVoicePreview(c *fiber.Ctx) error {
	if s.cfg.Studio == nil {
		return fail(c, fiber.NewError(fiber.StatusNotImplemented, "studio is not configured"))
	}
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil || !s.cfg.Profile.HasVoice(name) {
		return fail(c, fiber.NewError(fiber.StatusNotFound, "unknown voice"))
	}

	asset, err := s.cfg.Studio.VoicePreview(c.UserContext(), name)
	if err != nil {
		return fail(c, err)
	}
	c.Set(fiber.HeaderContentType, asset.MIMEType)
	return c.Send(asset.Data)
}

// SetVoiceRequest is the body of PUT /api/voice. Either field selects.
type SetVoiceRequest struct {
	Voice  string `json:"voice"`
	Number int    `json:"number"`
}

// handleSetVoice persists the voice for the next session.
func (s *Server) handleSetVoice(c *fiber.Ctx) error {
	var req SetVoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	voice := req.Voice
	if voice == "" && req.Number > 0 && req.Number <= len(s.cfg.Profile.Voices) {
		voice = s.cfg.Profile.Voices[req.Number-1]
	}
	if !s.cfg.Profile.HasVoice(voice) {
		return badRequest(c, "unknown voice")
	}

	if err := s.cfg.Store.Set(config.KeyVoice, voice); err != nil {
		return fail(c, err)
	}
	if err := s.cfg.Session.SelectVoice(voice); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"voice": voice})
}

// handleGetMode returns the persisted capture mode.
func (s *Server) handleGetMode(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"mode": config.Resolve(s.cfg.Store, s.cfg.Profile).Mode})
}

// handleSetMode persists the capture mode for the next session.
func (s *Server) handleSetMode(c *fiber.Ctx) error {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	mode, err := capture.ParseMode(req.Mode)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.cfg.Store.Set(config.KeyMode, string(mode)); err != nil {
		return fail(c, err)
	}
	_ = s.events.BroadcastEvent(EventMode, mode)
	return c.JSON(fiber.Map{"mode": mode})
}

// handleTools returns the declared tool registry.
func (s *Server) handleTools(c *fiber.Ctx) error {
	if s.cfg.Dispatcher == nil {
		return c.JSON([]any{})
	}
	return c.JSON(s.cfg.Dispatcher.Declarations())
}

// SDP is the body of the WebRTC offer/answer exchange.
type SDP struct {
	SDP string `json:"sdp"`
}

// handleOffer answers a browser microphone offer.
func (s *Server) handleOffer(c *fiber.Ctx) error {
	if s.cfg.Negotiator == nil {
		return fail(c, audioio.NewDeviceError("webrtc", audioio.ErrUnsupported, nil))
	}
	var offer SDP
	if err := c.BodyParser(&offer); err != nil || offer.SDP == "" {
		return badRequest(c, "sdp is required")
	}

	answer, err := s.cfg.Negotiator.Answer(c.UserContext(), offer.SDP)
	if err != nil {
		s.logger.Warn("webrtc negotiation failed", "error", err)
		return fail(c, fiber.NewError(fiber.StatusBadRequest, err.Error()))
	}
	return c.JSON(SDP{SDP: answer})
}

// DeviceErrorReport is a getUserMedia failure reported by the browser.
type DeviceErrorReport struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// handleDeviceError forwards a browser microphone failure to a pending Start.
func (s *Server) handleDeviceError(c *fiber.Ctx) error {
	if s.cfg.Negotiator == nil {
		return fail(c, audioio.NewDeviceError("webrtc", audioio.ErrUnsupported, nil))
	}
	var report DeviceErrorReport
	if err := c.BodyParser(&report); err != nil || report.Name == "" {
		return badRequest(c, "name is required")
	}

	derr := audioio.BrowserDeviceError("webrtc", report.Name, report.Message)
	s.cfg.Negotiator.ReportDeviceError(derr)
	s.logger.Info("browser microphone error", "error", derr)
	return c.SendStatus(fiber.StatusNoContent)
}

// handleGoogleAuth redirects to the Google consent page.
func (s *Server) handleGoogleAuth(c *fiber.Ctx) error {
	if s.cfg.Google == nil {
		return fail(c, fiber.NewError(fiber.StatusNotImplemented, "gmail is not configured"))
	}
	state := uuid.NewString()
	s.stateMu.Lock()
	s.oauthState = state
	s.stateMu.Unlock()
	return c.Redirect(s.cfg.Google.AuthURL(state), fiber.StatusTemporaryRedirect)
}

// handleGoogleCallback completes the consent flow.
func (s *Server) handleGoogleCallback(c *fiber.Ctx) error {
	if s.cfg.Google == nil {
		return fail(c, fiber.NewError(fiber.StatusNotImplemented, "gmail is not configured"))
	}

	s.stateMu.Lock()
	want := s.oauthState
	s.oauthState = ""
	s.stateMu.Unlock()

	if want == "" || c.Query("state") != want {
		return badRequest(c, "invalid oauth state")
	}
	code := c.Query("code")
	if code == "" {
		return badRequest(c, "missing code")
	}

	if err := s.cfg.Google.HandleCallback(c.UserContext(), code); err != nil {
		s.logger.Error("google oauth callback failed", "error", err)
		return fail(c, fiber.NewError(fiber.StatusBadGateway, err.Error()))
	}
	s.logger.Info("gmail authorized")
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (s *Server) requireStudio() (*studio.Studio, error) {
	if s.cfg.Studio == nil {
		return nil, fiber.NewError(fiber.StatusNotImplemented, "studio is not configured")
	}
	return s.cfg.Studio, nil
}

// handleImage generates images.
func (s *Server) handleImage(c *fiber.Ctx) error {
	st, err := s.requireStudio()
	if err != nil {
		return fail(c, err)
	}
	var req studio.ImageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	images, err := st.Images(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"images": images})
}

// handleThumbnail generates a video thumbnail.
func (s *Server) handleThumbnail(c *fiber.Ctx) error {
	st, err := s.requireStudio()
	if err != nil {
		return fail(c, err)
	}
	var req studio.ThumbnailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	asset, err := st.Thumbnail(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(asset)
}

// handleSpeech renders text as a WAV file.
func (s *Server) handleSpeech(c *fiber.Ctx) error {
	st, err := s.requireStudio()
	if err != nil {
		return fail(c, err)
	}
	var req studio.SpeechRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Voice == "" {
		req.Voice = config.Resolve(s.cfg.Store, s.cfg.Profile).Voice
	}
	asset, err := st.Speech(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	c.Set(fiber.HeaderContentType, asset.MIMEType)
	return c.Send(asset.Data)
}

// handleVideo generates a video. It blocks until the job finishes.
func (s *Server) handleVideo(c *fiber.Ctx) error {
	st, err := s.requireStudio()
	if err != nil {
		return fail(c, err)
	}
	var req studio.VideoRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	video, err := st.Video(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(video)
}

// handleEventsWS streams dashboard events, starting with a snapshot.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	var opts []hub.ClientOption
	if m, err := hub.NewEvent(EventSnapshot, s.cfg.Session.Snapshot()).Encode(); err == nil {
		opts = append(opts, hub.WithGreeting(m))
	}
	s.events.Serve(conn, opts...)
}

// frameControl is a text message on the frames socket.
type frameControl struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// handleFramesWS ingests browser-captured JPEG stills for camera or screen
// mode. Binary messages are frames; text messages report capture errors.
func (s *Server) handleFramesWS(conn *websocket.Conn) {
	source := strings.ToLower(conn.Params("source"))

	var grabber *capture.BrowserGrabber
	device := source
	switch source {
	case string(capture.ModeCamera):
		grabber = s.cfg.Camera
		device = "camera:browser"
	case string(capture.ModeScreen):
		grabber = s.cfg.Screen
	}
	if grabber == nil {
		s.logger.Warn("frames socket for unavailable source", "source", source)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "unsupported source"))
		_ = conn.Close()
		return
	}

	s.frames.Serve(conn, hub.WithInbound(func(clientID string, msgType int, data []byte) {
		if msgType == websocket.BinaryMessage {
			grabber.Push(data)
			return
		}

		var ctl frameControl
		if err := json.Unmarshal(data, &ctl); err != nil {
			s.logger.Debug("ignoring frames message", "client", clientID, "error", err)
			return
		}
		if ctl.Type == "error" {
			derr := audioio.BrowserDeviceError(device, ctl.Name, ctl.Message)
			grabber.ReportDeviceError(derr)
			s.logger.Info("browser capture error", "source", source, "error", derr)
		}
	}))
}
