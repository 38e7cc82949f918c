package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Actions performs the host-side effects of tool calls.
type Actions interface {
	// Navigate switches the UI to view.
	Navigate(view string) error

	// SelectVoice records voice as the active voice.
	SelectVoice(voice string) error
}

// Composer opens an email draft and returns a short description of where it went.
type Composer interface {
	Compose(ctx context.Context, email ComposeEmail) (string, error)
}

// Config configures a Dispatcher.
type Config struct {
	Actions  Actions
	Composer Composer

	// Voices is the ordered voice registry; ordinals are 1-based indexes into it.
	Voices []string

	// Views lists valid navigation targets. Empty accepts any view.
	Views []string

	Logger *slog.Logger
}

// Dispatcher executes tool calls against a fixed registry.
type Dispatcher struct {
	actions  Actions
	composer Composer
	voices   []string
	views    []string
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		actions:  cfg.Actions,
		composer: cfg.Composer,
		voices:   slices.Clone(cfg.Voices),
		views:    slices.Clone(cfg.Views),
		logger:   logger.With("component", "tools"),
	}
}

// Declarations returns the registry for this dispatcher's views and voices.
func (d *Dispatcher) Declarations() []Declaration {
	return Declarations(d.views, len(d.voices))
}

// DispatchAll runs each request in order and returns one Response per request.
func (d *Dispatcher) DispatchAll(ctx context.Context, reqs []Request) []Response {
	out := make([]Response, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, d.Dispatch(ctx, req))
	}
	return out
}

// Dispatch runs a single request. It never fails: every outcome, including
// unknown tools and bad arguments, is reported in the Response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, Name: req.Name}

	call, err := Parse(req)
	switch {
	case errors.Is(err, ErrUnknownTool):
		d.logger.Warn("unknown tool call acknowledged", "tool", req.Name, "id", req.ID)
		resp.Result, resp.Status = "OK", StatusUnknown
		return resp
	case err != nil:
		d.logger.Warn("invalid tool arguments", "tool", req.Name, "error", err)
		resp.Result, resp.Status = "invalid arguments: "+err.Error(), StatusInvalid
		return resp
	}

	resp.Result, resp.Status = d.run(ctx, call)
	d.logger.Debug("tool call dispatched",
		"tool", req.Name,
		"id", req.ID,
		"status", resp.Status,
	)
	return resp
}

func (d *Dispatcher) run(ctx context.Context, call Call) (string, Status) {
	switch c := call.(type) {
	case Navigate:
		if len(d.views) > 0 && !slices.Contains(d.views, c.View) {
			return fmt.Sprintf("invalid view %q: choose one of %v", c.View, d.views), StatusInvalid
		}
		if d.actions != nil {
			if err := d.actions.Navigate(c.View); err != nil {
				return d.failed(call, err)
			}
		}
		return "Navigated to " + c.View, StatusOK

	case ComposeEmail:
		if d.composer == nil {
			return "email is not available", StatusError
		}
		where, err := d.composer.Compose(ctx, c)
		if err != nil {
			return d.failed(call, err)
		}
		return "Email draft opened: " + where, StatusOK

	case SelectVoice:
		if c.Number < 1 || c.Number > len(d.voices) {
			return fmt.Sprintf("invalid voice number %d: choose between 1 and %d", c.Number, len(d.voices)), StatusInvalid
		}
		voice := d.voices[c.Number-1]
		if d.actions != nil {
			if err := d.actions.SelectVoice(voice); err != nil {
				return d.failed(call, err)
			}
		}
		return "Voice set to " + voice + ". It applies to the next session.", StatusOK
	}

	return "OK", StatusUnknown
}

func (d *Dispatcher) failed(call Call, err error) (string, Status) {
	d.logger.Error("tool call failed", "tool", call.toolName(), "error", err)
	return "error: " + err.Error(), StatusError
}
