package session

import "time"

// State is the session lifecycle state.
type State string

const (
	StateInactive     State = "inactive"
	StateInitializing State = "initializing"
	StateListening    State = "listening"
	StateSpeaking     State = "speaking"
)

func (s State) String() string {
	return string(s)
}

// Active reports whether the state holds devices or a transport.
func (s State) Active() bool {
	return s != StateInactive
}

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Entry is one committed transcript line.
type Entry struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Snapshot is a read-only view of the session for the UI.
type Snapshot struct {
	State        State     `json:"state"`
	RunID        string    `json:"run_id,omitempty"`
	Mode         string    `json:"mode,omitempty"`
	Voice        string    `json:"voice,omitempty"`
	PendingVoice string    `json:"pending_voice,omitempty"`
	StartedAt    time.Time `json:"started_at,omitzero"`

	History      []Entry `json:"history"`
	UserPartial  string  `json:"user_partial"`
	ModelPartial string  `json:"model_partial"`

	Level            float64 `json:"level"`
	NextPlaybackTime float64 `json:"next_playback_time"`
	ActivePlayback   int     `json:"active_playback"`
	FramesSent       int64   `json:"frames_sent"`
	DecodeErrors     int64   `json:"decode_errors"`
}

// Callbacks receive session notifications. They run on session goroutines
// after internal locks are released and may call back into the Session.
type Callbacks struct {
	// OnStateChange is called on every transition.
	OnStateChange func(from, to State)

	// OnPartial is called with the accumulated partial text of a turn.
	OnPartial func(speaker Speaker, text string)

	// OnEntry is called when a transcript entry is committed.
	OnEntry func(entry Entry)

	// OnLevel is called with the smoothed input loudness of each frame.
	OnLevel func(level float64)

	// OnToolCall is called after each tool call is dispatched.
	OnToolCall func(name string, result string)

	// OnVoiceSelected is called when a voice is chosen for the next session.
	OnVoiceSelected func(voice string)

	// OnError is called once with a terminal transport error, before teardown.
	OnError func(err error)
}
