package live

import (
	"context"
	"io"

	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/capture"
	"github.com/teslashibe/go-murmur/pkg/tools"
)

// DefaultModel is the Live model used when Options.Model is empty.
const DefaultModel = "gemini-2.0-flash-live-001"

// Options configures a Conn.
type Options struct {
	// Model is the Live model name.
	Model string

	// Mode is the capture mode the session runs in.
	Mode capture.Mode

	// Voice is the prebuilt voice name, e.g. "Puck".
	Voice string

	// SystemPrompt is the system instruction for the session.
	SystemPrompt string

	// Tools is the registry declared to the model.
	Tools []tools.Declaration

	// Credential is the API key.
	Credential string

	// InputSampleRate is the rate of outbound audio. Default: 16000.
	InputSampleRate int
}

// Media is one outbound audio frame or image.
type Media struct {
	MIMEType string

	// Data is the raw payload.
	Data []byte

	// Encoded is Data in base64 wire form when the producer already has it.
	Encoded string
}

// Bytes returns the raw payload, decoding Encoded when Data is unset.
func (m Media) Bytes() ([]byte, error) {
	if m.Data != nil || m.Encoded == "" {
		return m.Data, nil
	}
	return audioio.DecodeToBytes(m.Encoded)
}

// Dialer opens Conns.
type Dialer interface {
	Dial(ctx context.Context, opts Options) (Conn, error)
}

// Conn is an open channel to the remote model. Send methods are safe for
// concurrent use.
type Conn interface {
	// SendAudio forwards one captured audio frame.
	SendAudio(m Media) error

	// SendImage forwards one video still.
	SendImage(m Media) error

	// SendToolResponses answers tool calls, correlated by ID.
	SendToolResponses(responses []tools.Response) error

	// Events delivers inbound events in arrival order. The channel is
	// closed when the Conn ends; a remote failure or hang-up is first
	// reported as a Closed event.
	Events() <-chan Event

	// Close ends the channel. It is idempotent.
	io.Closer
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, opts Options) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, opts Options) (Conn, error) {
	return f(ctx, opts)
}

func (o Options) model() string {
	if o.Model == "" {
		return DefaultModel
	}
	return o.Model
}

func (o Options) inputRate() int {
	if o.InputSampleRate <= 0 {
		return 16000
	}
	return o.InputSampleRate
}
