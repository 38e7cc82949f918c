package web

import (
	"errors"

	"github.com/teslashibe/go-murmur/internal/config"
	"github.com/teslashibe/go-murmur/pkg/hub"
	"github.com/teslashibe/go-murmur/pkg/session"
)

// Dashboard event types.
const (
	EventSnapshot = "snapshot"
	EventState    = "state"
	EventPartial  = "partial"
	EventEntry    = "entry"
	EventLevel    = "level"
	EventToolCall = "tool_call"
	EventVoice    = "voice"
	EventMode     = "mode"
	EventError    = "error"
	EventNavigate = "navigate"
	EventOpenURL  = "open_url"
)

// StateChange is the payload of EventState.
type StateChange struct {
	From session.State `json:"from"`
	To   session.State `json:"to"`
}

// Partial is the payload of EventPartial.
type Partial struct {
	Speaker session.Speaker `json:"speaker"`
	Text    string          `json:"text"`
}

// ToolCall is the payload of EventToolCall.
type ToolCall struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// SessionCallbacks returns callbacks that broadcast every session
// notification on events. Callbacks in next run after the broadcast.
func SessionCallbacks(events *hub.Hub, next session.Callbacks) session.Callbacks {
	return session.Callbacks{
		OnStateChange: func(from, to session.State) {
			_ = events.BroadcastEvent(EventState, StateChange{From: from, To: to})
			if next.OnStateChange != nil {
				next.OnStateChange(from, to)
			}
		},
		OnPartial: func(speaker session.Speaker, text string) {
			_ = events.BroadcastEvent(EventPartial, Partial{Speaker: speaker, Text: text})
			if next.OnPartial != nil {
				next.OnPartial(speaker, text)
			}
		},
		OnEntry: func(e session.Entry) {
			_ = events.BroadcastEvent(EventEntry, e)
			if next.OnEntry != nil {
				next.OnEntry(e)
			}
		},
		OnLevel: func(level float64) {
			_ = events.BroadcastEvent(EventLevel, level)
			if next.OnLevel != nil {
				next.OnLevel(level)
			}
		},
		OnToolCall: func(name, result string) {
			_ = events.BroadcastEvent(EventToolCall, ToolCall{Name: name, Result: result})
			if next.OnToolCall != nil {
				next.OnToolCall(name, result)
			}
		},
		OnVoiceSelected: func(voice string) {
			_ = events.BroadcastEvent(EventVoice, voice)
			if next.OnVoiceSelected != nil {
				next.OnVoiceSelected(voice)
			}
		},
		OnError: func(err error) {
			status, code := errorStatus(err)
			_ = events.BroadcastEvent(EventError, map[string]any{
				"error":  err.Error(),
				"code":   code,
				"status": status,
			})
			if next.OnError != nil {
				next.OnError(err)
			}
		},
	}
}

// UIActions performs tool-call side effects through the dashboard.
// It implements tools.Actions.
type UIActions struct {
	Events *hub.Hub
	Store  config.Store

	// Session receives voice selections. It is usually set after the
	// session is built, since the session needs the dispatcher first.
	Session Session
}

// Navigate asks the dashboard to show view.
func (a *UIActions) Navigate(view string) error {
	return a.Events.BroadcastEvent(EventNavigate, view)
}

// SelectVoice persists voice and records it on the session for the next run.
func (a *UIActions) SelectVoice(voice string) error {
	if a.Store != nil {
		if err := a.Store.Set(config.KeyVoice, voice); err != nil {
			return err
		}
	}
	if a.Session == nil {
		return errors.New("web: no session to select voice on")
	}
	return a.Session.SelectVoice(voice)
}

// OpenLink asks the dashboard to open link, such as a mailto URL.
func (a *UIActions) OpenLink(link string) error {
	return a.Events.BroadcastEvent(EventOpenURL, link)
}
