package live

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/tools"
)

// GenAIDialer opens Gemini Live sessions through the genai SDK.
type GenAIDialer struct {
	// HTTPClient is used for the SDK client. Nil uses the SDK default.
	HTTPClient *http.Client

	// BaseURL overrides the API endpoint. A ws:// or wss:// scheme is used
	// as given for the Live socket.
	BaseURL string

	Logger *slog.Logger
}

// Dial implements Dialer.
func (d *GenAIDialer) Dial(ctx context.Context, opts Options) (Conn, error) {
	if opts.Credential == "" {
		return nil, &TransportError{Op: "dial", Err: ErrMissingCredential}
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.Credential,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  d.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: d.BaseURL},
	})
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	session, err := client.Live.Connect(ctx, opts.model(), connectConfig(opts))
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	c := &genaiConn{
		session:   session,
		pump:      newPump(),
		inputRate: opts.inputRate(),
		logger:    logger.With("component", "live", "transport", "genai"),
	}
	go c.receiveLoop()

	c.logger.Info("live session open", "model", opts.model(), "voice", opts.Voice, "mode", opts.Mode)
	return c, nil
}

func connectConfig(opts Options) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: opts.Voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}

	if opts.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}

	if len(opts.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(opts.Tools))
		for _, t := range opts.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return cfg
}

type genaiConn struct {
	session   *genai.Session
	pump      *pump
	inputRate int
	logger    *slog.Logger
}

func (c *genaiConn) SendAudio(m Media) error {
	if c.pump.closedLocally() {
		return ErrClosed
	}
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	mime := m.MIMEType
	if mime == "" {
		mime = audioio.PCMMimeType(c.inputRate)
	}
	err = c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: mime},
	})
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (c *genaiConn) SendImage(m Media) error {
	if c.pump.closedLocally() {
		return ErrClosed
	}
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	mime := m.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	err = c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Video: &genai.Blob{Data: data, MIMEType: mime},
	})
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (c *genaiConn) SendToolResponses(responses []tools.Response) error {
	if c.pump.closedLocally() {
		return ErrClosed
	}
	fr := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		fr = append(fr, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: map[string]any{"result": r.Result},
		})
	}
	if err := c.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: fr}); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (c *genaiConn) Events() <-chan Event {
	return c.pump.events
}

func (c *genaiConn) Close() error {
	if !c.pump.shutdown() {
		return nil
	}
	return c.session.Close()
}

func (c *genaiConn) receiveLoop() {
	for {
		msg, err := c.session.Receive()
		if err != nil {
			if c.pump.closedLocally() {
				c.pump.finish(nil)
				return
			}
			c.pump.finish(&TransportError{Op: "receive", Err: err})
			return
		}

		for _, ev := range c.translate(msg) {
			if !c.pump.emit(ev) {
				c.pump.finish(nil)
				return
			}
		}
	}
}

func (c *genaiConn) translate(msg *genai.LiveServerMessage) []Event {
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
				if p == nil || p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
					continue
				}
				events = append(events, Audio{
					Data:       p.InlineData.Data,
					SampleRate: audioio.ParseSampleRate(p.InlineData.MIMEType, audioio.OutputSampleRate),
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
			if fc == nil {
				continue
			}
			calls = append(calls, tools.Request{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		events = append(events, ToolCall{Calls: calls})
	}

	if msg.GoAway != nil {
		c.logger.Warn("live server going away")
	}

	return events
}

var _ Dialer = (*GenAIDialer)(nil)
