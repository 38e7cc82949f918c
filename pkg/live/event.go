package live

import (
	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/tools"
)

// Event is an inbound message from the remote model. The set of
// implementations is closed.
type Event interface {
	isEvent()
}

// InputTranscript is a partial transcript of the user's speech.
type InputTranscript struct {
	Text string
}

// OutputTranscript is a partial transcript of the model's speech.
type OutputTranscript struct {
	Text string
}

// Audio is one chunk of synthesized model speech, PCM16LE mono.
type Audio struct {
	// Data holds decoded bytes when the transport already decoded them.
	Data []byte

	// Encoded holds the base64 wire form when Data is nil.
	Encoded string

	// SampleRate of the PCM. Default: 24000.
	SampleRate int
}

// TurnComplete marks the end of a model turn.
type TurnComplete struct{}

// Interrupted reports that the user barged in over model speech.
type Interrupted struct{}

// ToolCall carries one or more function calls to dispatch.
type ToolCall struct {
	Calls []tools.Request
}

// Closed is the final event. Err is nil after a local Close and set when
// the remote side failed or hung up.
type Closed struct {
	Err error
}

func (InputTranscript) isEvent()  {}
func (OutputTranscript) isEvent() {}
func (Audio) isEvent()            {}
func (TurnComplete) isEvent()     {}
func (Interrupted) isEvent()      {}
func (ToolCall) isEvent()         {}
func (Closed) isEvent()           {}

// PCM returns the chunk's raw bytes, decoding the wire form if needed.
// Malformed input yields *audioio.DecodeError.
func (a Audio) PCM() ([]byte, error) {
	if a.Data != nil {
		return a.Data, nil
	}
	return audioio.DecodeToBytes(a.Encoded)
}

// Rate returns SampleRate or the default output rate.
func (a Audio) Rate() int {
	if a.SampleRate <= 0 {
		return audioio.OutputSampleRate
	}
	return a.SampleRate
}
