// Package live is the bidirectional channel between a session and the
// hosted conversational model.
//
// A Dialer opens a Conn configured with the session's mode, voice, system
// prompt and tool registry. The Conn accepts outbound audio and image
// media and delivers inbound Events in arrival order on a single channel:
// transcripts, audio chunks, turn boundaries, interruptions and tool calls.
// When the remote side fails or hangs up, a Closed event carries the cause
// before the channel is closed.
//
// Three transports are provided:
//   - GenAIDialer: the Gemini Live API through the google.golang.org/genai SDK
//   - WebsocketDialer: the raw Gemini Live websocket protocol
//   - Mock: a scriptable in-memory transport for tests
package live
