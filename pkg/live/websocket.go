package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/tools"
)

// GeminiLiveURL is the Gemini Live API websocket endpoint.
const GeminiLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// WebsocketDialer speaks the Gemini Live protocol directly over a websocket.
type WebsocketDialer struct {
	// URL overrides GeminiLiveURL.
	URL string

	// HandshakeTimeout bounds the websocket handshake. Default: 10s.
	HandshakeTimeout time.Duration

	// SetupTimeout bounds the wait for setupComplete. Default: 15s.
	SetupTimeout time.Duration

	Logger *slog.Logger
}

// Dial connects, sends the session setup and waits for the server to
// acknowledge it.
func (d *WebsocketDialer) Dial(ctx context.Context, opts Options) (Conn, error) {
	if opts.Credential == "" {
		return nil, &TransportError{Op: "dial", Err: ErrMissingCredential}
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := d.URL
	if endpoint == "" {
		endpoint = GeminiLiveURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	q := u.Query()
	q.Set("key", opts.Credential)
	u.RawQuery = q.Encode()

	handshake := d.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshake}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	ws, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	c := &wsConn{
		ws:        ws,
		pump:      newPump(),
		inputRate: opts.inputRate(),
		logger:    logger.With("component", "live", "transport", "websocket"),
	}

	if err := c.writeJSON(setupMessage(opts)); err != nil {
		ws.Close()
		return nil, &TransportError{Op: "setup", Err: err}
	}

	setupTimeout := d.SetupTimeout
	if setupTimeout <= 0 {
		setupTimeout = 15 * time.Second
	}
	if err := c.awaitSetup(ctx, setupTimeout); err != nil {
		ws.Close()
		return nil, &TransportError{Op: "setup", Err: err}
	}

	go c.readLoop()

	c.logger.Info("live session open", "model", opts.model(), "voice", opts.Voice, "mode", opts.Mode)
	return c, nil
}

type wsConn struct {
	ws        *websocket.Conn
	wsMu      sync.Mutex
	pump      *pump
	inputRate int
	logger    *slog.Logger
}

func setupMessage(opts Options) map[string]any {
	model := opts.model()
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	setup := map[string]any{
		"model": model,
		"generation_config": map[string]any{
			"response_modalities": []string{"AUDIO"},
			"speech_config": map[string]any{
				"voice_config": map[string]any{
					"prebuilt_voice_config": map[string]any{
						"voice_name": opts.Voice,
					},
				},
			},
		},
		"input_audio_transcription":  map[string]any{},
		"output_audio_transcription": map[string]any{},
	}

	if opts.SystemPrompt != "" {
		setup["system_instruction"] = map[string]any{
			"parts": []map[string]any{
				{"text": opts.SystemPrompt},
			},
		}
	}

	if len(opts.Tools) > 0 {
		decls := make([]map[string]any, 0, len(opts.Tools))
		for _, t := range opts.Tools {
			decls = append(decls, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			})
		}
		setup["tools"] = []map[string]any{
			{"function_declarations": decls},
		}
	}

	return map[string]any{"setup": setup}
}

func (c *wsConn) awaitSetup(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("invalid setup reply: %w", err)
		}
		if msg.SetupComplete != nil {
			return c.ws.SetReadDeadline(time.Time{})
		}
	}
}

func (c *wsConn) SendAudio(m Media) error {
	if m.MIMEType == "" {
		m.MIMEType = audioio.PCMMimeType(c.inputRate)
	}
	return c.sendMedia(m)
}

func (c *wsConn) SendImage(m Media) error {
	if m.MIMEType == "" {
		m.MIMEType = "image/jpeg"
	}
	return c.sendMedia(m)
}

func (c *wsConn) sendMedia(m Media) error {
	data := m.Encoded
	if data == "" {
		data = base64.StdEncoding.EncodeToString(m.Data)
	}
	return c.send(map[string]any{
		"realtime_input": map[string]any{
			"media_chunks": []map[string]any{
				{"data": data, "mime_type": m.MIMEType},
			},
		},
	})
}

func (c *wsConn) SendToolResponses(responses []tools.Response) error {
	fr := make([]map[string]any, 0, len(responses))
	for _, r := range responses {
		fr = append(fr, map[string]any{
			"id":       r.ID,
			"name":     r.Name,
			"response": map[string]any{"result": r.Result},
		})
	}
	return c.send(map[string]any{
		"tool_response": map[string]any{"function_responses": fr},
	})
}

func (c *wsConn) send(v any) error {
	if c.pump.closedLocally() {
		return ErrClosed
	}
	if err := c.writeJSON(v); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (c *wsConn) writeJSON(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *wsConn) Events() <-chan Event {
	return c.pump.events
}

func (c *wsConn) Close() error {
	if !c.pump.shutdown() {
		return nil
	}

	c.wsMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wsMu.Unlock()

	return c.ws.Close()
}

func (c *wsConn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.pump.closedLocally() {
				c.pump.finish(nil)
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Info("live session closed by server")
			}
			c.pump.finish(&TransportError{Op: "receive", Err: err})
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("unparseable live message", "error", err)
			continue
		}

		for _, ev := range c.translate(&msg) {
			if !c.pump.emit(ev) {
				c.pump.finish(nil)
				return
			}
		}
	}
}

// translate maps one server message to events. Within a serverContent,
// transcripts precede audio, and turn boundaries come last.
func (c *wsConn) translate(msg *serverMessage) []Event {
	var events []Event

	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			events = append(events, InputTranscript{Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			events = append(events, OutputTranscript{Text: sc.OutputTranscription.Text})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MimeType, "audio/") {
					continue
				}
				events = append(events, Audio{
					Encoded:    p.InlineData.Data,
					SampleRate: audioio.ParseSampleRate(p.InlineData.MimeType, audioio.OutputSampleRate),
				})
			}
		}
		if sc.Interrupted {
			events = append(events, Interrupted{})
		}
		if sc.TurnComplete {
			events = append(events, TurnComplete{})
		}
	}

	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		calls := make([]tools.Request, 0, len(tc.FunctionCalls))
		for _, fc := range tc.FunctionCalls {
			calls = append(calls, tools.Request{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		events = append(events, ToolCall{Calls: calls})
	}

	if msg.ToolCallCancellation != nil {
		c.logger.Debug("tool calls cancelled", "ids", msg.ToolCallCancellation.IDs)
	}
	if msg.GoAway != nil {
		c.logger.Warn("live server going away", "time_left", msg.GoAway.TimeLeft)
	}

	return events
}

type serverMessage struct {
	SetupComplete        *struct{}             `json:"setupComplete"`
	ServerContent        *serverContent        `json:"serverContent"`
	ToolCall             *toolCallMessage      `json:"toolCall"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation"`
	GoAway               *goAway               `json:"goAway"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn"`
	TurnComplete        bool           `json:"turnComplete"`
	Interrupted         bool           `json:"interrupted"`
	InputTranscription  *transcription `json:"inputTranscription"`
	OutputTranscription *transcription `json:"outputTranscription"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text"`
	InlineData *inlineData `json:"inlineData"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallMessage struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

var _ Dialer = (*WebsocketDialer)(nil)
