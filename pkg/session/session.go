// Package session runs one live conversation at a time: it owns the
// capture handle, the remote connection and the playback scheduler, and
// applies inbound events to a small state machine.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/capture"
	"github.com/teslashibe/go-murmur/pkg/live"
	"github.com/teslashibe/go-murmur/pkg/playback"
	"github.com/teslashibe/go-murmur/pkg/telemetry"
	"github.com/teslashibe/go-murmur/pkg/tools"
)

// Capturer starts capture runs. *capture.Pipeline implements it.
type Capturer interface {
	Start(ctx context.Context, c capture.Constraints) (*capture.Handle, error)
}

// OutputOpener opens the playback device for one session.
type OutputOpener func(ctx context.Context) (audioio.Output, error)

// Config configures a Session.
type Config struct {
	Dialer  live.Dialer
	Capture Capturer

	// Constraints are the capture defaults; Mode is set per Start.
	Constraints capture.Constraints

	// OpenOutput opens the playback device. Default: audioio.NewOutput
	// with the default output configuration.
	OpenOutput OutputOpener

	// Dispatcher executes tool calls. Nil acknowledges every call with "OK".
	Dispatcher *tools.Dispatcher

	// Model overrides the Live model.
	Model string

	Metrics   *telemetry.Metrics
	Latency   *telemetry.LatencyTracker
	Callbacks Callbacks
	Logger    *slog.Logger
}

// StartRequest selects the parameters of one session.
type StartRequest struct {
	Mode         capture.Mode
	Voice        string
	Credential   string
	SystemPrompt string
}

// Session is the live conversation state machine. Exactly one run is
// active at a time.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	run       *run
	releasing chan struct{}

	history      []Entry
	userBuf      strings.Builder
	modelBuf     strings.Builder
	modelTurn    bool
	pendingVoice string

	decodeErrors atomic.Int64
	framesSent   atomic.Int64
}

// run is the set of resources acquired by one Start.
type run struct {
	id      string
	mode    capture.Mode
	voice   string
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger

	handle *capture.Handle
	conn   live.Conn
	sched  *playback.Scheduler

	// listening is set once the run reached listening.
	listening bool

	// released is closed by Start once a run that never reached listening
	// has given back everything it acquired.
	released chan struct{}
}

// New creates an inactive Session.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Constraints.SampleRate == 0 {
		cfg.Constraints = capture.DefaultConstraints()
	}
	if cfg.OpenOutput == nil {
		cfg.OpenOutput = func(ctx context.Context) (audioio.Output, error) {
			return audioio.NewOutput(ctx, audioio.DefaultOutputConfig(), logger)
		}
	}
	return &Session{
		cfg:    cfg,
		logger: logger.With("component", "session"),
		state:  StateInactive,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start acquires the capture devices, opens the remote connection and
// begins streaming. A missing credential fails with *ConfigurationError
// before any device is touched. Device failures return *capture.DeviceError;
// connection failures return *live.TransportError after everything acquired
// so far is released.
func (s *Session) Start(ctx context.Context, req StartRequest) error {
	if strings.TrimSpace(req.Credential) == "" {
		return &ConfigurationError{Field: "credential", Reason: "is required"}
	}
	mode, err := capture.ParseMode(string(req.Mode))
	if err != nil {
		return &ConfigurationError{Field: "mode", Reason: err.Error()}
	}
	if s.cfg.Dialer == nil || s.cfg.Capture == nil {
		return &ConfigurationError{Field: "dialer", Reason: "and capture must be configured"}
	}

	s.mu.Lock()
	if s.state != StateInactive {
		s.mu.Unlock()
		return ErrActive
	}
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:       id,
		mode:     mode,
		voice:    req.Voice,
		started:  time.Now(),
		ctx:      runCtx,
		cancel:   cancel,
		logger:   s.logger.With("session", id, "mode", mode),
		released: make(chan struct{}),
	}
	s.run = r
	s.resetTranscriptLocked()
	s.decodeErrors.Store(0)
	s.framesSent.Store(0)
	from := s.setStateLocked(StateInitializing)
	s.mu.Unlock()
	s.notifyState(from, StateInitializing)

	r.logger.Info("session starting", "voice", req.Voice)

	listening := false
	defer func() {
		if !listening {
			close(r.released)
		}
	}()

	handle, err := s.cfg.Capture.Start(runCtx, s.cfg.Constraints.WithMode(mode))
	if err != nil {
		s.abort(r, failureReason(err))
		r.logger.Warn("capture failed", "error", err)
		return err
	}
	r.handle = handle

	out, err := s.cfg.OpenOutput(runCtx)
	if err != nil {
		handle.Stop()
		s.abort(r, "output_error")
		r.logger.Warn("output failed", "error", err)
		return err
	}
	r.sched = playback.NewScheduler(out, r.logger)

	var declared []tools.Declaration
	if s.cfg.Dispatcher != nil {
		declared = s.cfg.Dispatcher.Declarations()
	}

	dialCtx, dialCancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(runCtx, dialCancel)
	conn, err := s.cfg.Dialer.Dial(dialCtx, live.Options{
		Model:           s.cfg.Model,
		Mode:            mode,
		Voice:           req.Voice,
		SystemPrompt:    req.SystemPrompt,
		Tools:           declared,
		Credential:      req.Credential,
		InputSampleRate: s.cfg.Constraints.SampleRate,
	})
	stopAfter()
	dialCancel()
	if err != nil {
		handle.Stop()
		r.sched.Teardown()
		if runCtx.Err() != nil {
			s.abort(r, "cancelled")
			return ErrStopped
		}
		s.abort(r, "transport_error")
		r.logger.Warn("dial failed", "error", err)
		if !live.IsTransportError(err) {
			err = &live.TransportError{Op: "dial", Err: err}
		}
		return err
	}

	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		_ = conn.Close()
		handle.Stop()
		r.sched.Teardown()
		r.logger.Info("session stopped during start")
		return ErrStopped
	}
	r.conn = conn
	r.listening = true
	listening = true
	from = s.setStateLocked(StateListening)
	s.mu.Unlock()

	s.cfg.Metrics.SessionStarted(string(mode))
	s.notifyState(from, StateListening)

	handle.SetFrameSink(s.frameSink(r))
	if mode.HasVideo() {
		handle.SetImageSink(s.imageSink(r))
	}
	go s.receive(r)

	r.logger.Info("session listening")
	return nil
}

func (s *Session) frameSink(r *run) capture.FrameFunc {
	mime := audioio.PCMMimeType(s.cfg.Constraints.SampleRate)
	return func(f capture.Frame) {
		if fn := s.cfg.Callbacks.OnLevel; fn != nil {
			fn(f.Level)
		}
		err := r.conn.SendAudio(live.Media{MIMEType: mime, Encoded: f.Encoded})
		if err != nil {
			if !errors.Is(err, live.ErrClosed) {
				r.logger.Debug("send audio failed", "seq", f.Seq, "error", err)
			}
			return
		}
		s.framesSent.Add(1)
		s.cfg.Metrics.FrameSent(len(f.Samples) * 2)
	}
}

func (s *Session) imageSink(r *run) capture.ImageFunc {
	return func(img capture.Image) {
		err := r.conn.SendImage(live.Media{MIMEType: img.MIMEType, Data: img.Data})
		if err != nil {
			if !errors.Is(err, live.ErrClosed) {
				r.logger.Debug("send image failed", "seq", img.Seq, "error", err)
			}
			return
		}
		s.cfg.Metrics.ImageSent()
	}
}

// receive applies inbound events in arrival order until the connection ends.
func (s *Session) receive(r *run) {
	for ev := range r.conn.Events() {
		if c, ok := ev.(live.Closed); ok {
			if c.Err != nil {
				s.fail(r, c.Err)
			}
			return
		}
		s.apply(r, ev)
	}
}

// HandleEvent applies ev to the active run. Events must be delivered
// sequentially; the receive goroutine does this for connections opened by
// Start.
func (s *Session) HandleEvent(ev live.Event) {
	s.mu.Lock()
	r := s.run
	ready := r != nil && r.listening
	s.mu.Unlock()
	if !ready {
		return
	}
	if c, ok := ev.(live.Closed); ok {
		if c.Err != nil {
			s.fail(r, c.Err)
		}
		return
	}
	s.apply(r, ev)
}

func (s *Session) apply(r *run, ev live.Event) {
	if tc, ok := ev.(live.ToolCall); ok {
		s.dispatch(r, tc)
		return
	}

	var notes []func()

	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}

	switch e := ev.(type) {
	case live.InputTranscript:
		s.userBuf.WriteString(e.Text)
		text := s.userBuf.String()
		s.cfg.Latency.MarkUserSpeech()
		notes = append(notes, s.partialNote(SpeakerUser, text))

	case live.OutputTranscript:
		if !s.modelTurn {
			s.modelTurn = true
			if entry, ok := s.commitLocked(SpeakerUser, &s.userBuf); ok {
				notes = append(notes, s.entryNote(entry))
			}
			if from := s.setStateLocked(StateSpeaking); from != StateSpeaking {
				notes = append(notes, func() { s.notifyState(from, StateSpeaking) })
			}
			s.cfg.Latency.MarkOutputTranscript()
		}
		s.modelBuf.WriteString(e.Text)
		notes = append(notes, s.partialNote(SpeakerModel, s.modelBuf.String()))

	case live.Audio:
		if err := r.sched.Enqueue(e); err != nil {
			if audioio.IsDecodeError(err) {
				s.decodeErrors.Add(1)
				s.cfg.Metrics.DecodeError()
			}
			r.logger.Warn("dropping audio chunk", "error", err)
			break
		}
		s.cfg.Metrics.AudioReceived(len(e.Data) + len(e.Encoded)*3/4)
		if d, ok := s.cfg.Latency.MarkAudio(); ok {
			s.cfg.Metrics.ObserveFirstAudio(d)
		}

	case live.TurnComplete:
		if entry, ok := s.commitLocked(SpeakerUser, &s.userBuf); ok {
			notes = append(notes, s.entryNote(entry))
		}
		if entry, ok := s.commitLocked(SpeakerModel, &s.modelBuf); ok {
			notes = append(notes, s.entryNote(entry))
		}
		s.modelTurn = false
		if from := s.setStateLocked(StateListening); from != StateListening {
			notes = append(notes, func() { s.notifyState(from, StateListening) })
		}
		s.cfg.Metrics.TurnCompleted()
		if s.cfg.Latency != nil {
			notes = append(notes, func() {
				turn := s.cfg.Latency.MarkDone()
				r.logger.Debug("turn complete", "latency", turn.FormatLatency())
			})
		}

	case live.Interrupted:
		r.sched.Flush()
		s.modelBuf.Reset()
		s.modelTurn = false
		if from := s.setStateLocked(StateListening); from != StateListening {
			notes = append(notes, func() { s.notifyState(from, StateListening) })
		}
		notes = append(notes, s.partialNote(SpeakerModel, ""))
		s.cfg.Metrics.Interrupted()
		s.cfg.Latency.MarkInterrupted()
		r.logger.Debug("interrupted; playback flushed")
	}
	s.mu.Unlock()

	for _, fn := range notes {
		fn()
	}
}

func (s *Session) dispatch(r *run, tc live.ToolCall) {
	var responses []tools.Response
	if s.cfg.Dispatcher != nil {
		responses = s.cfg.Dispatcher.DispatchAll(r.ctx, tc.Calls)
	} else {
		for _, c := range tc.Calls {
			responses = append(responses, tools.Response{ID: c.ID, Name: c.Name, Result: "OK", Status: tools.StatusUnknown})
		}
	}

	s.mu.Lock()
	current := s.run == r
	s.mu.Unlock()
	if !current {
		return
	}

	for _, resp := range responses {
		s.cfg.Metrics.ToolCall(resp.Name, string(resp.Status))
		if fn := s.cfg.Callbacks.OnToolCall; fn != nil {
			fn(resp.Name, resp.Result)
		}
	}
	if err := r.conn.SendToolResponses(responses); err != nil && !errors.Is(err, live.ErrClosed) {
		r.logger.Warn("send tool responses failed", "error", err)
	}
}

// SelectVoice records voice for the next session. The running session
// keeps its negotiated voice.
func (s *Session) SelectVoice(voice string) error {
	s.mu.Lock()
	s.pendingVoice = voice
	s.mu.Unlock()

	s.logger.Info("voice selected for next session", "voice", voice)
	if fn := s.cfg.Callbacks.OnVoiceSelected; fn != nil {
		fn(voice)
	}
	return nil
}

// fail surfaces a terminal transport error and tears the run down.
func (s *Session) fail(r *run, err error) {
	s.mu.Lock()
	current := s.run == r
	s.mu.Unlock()
	if !current {
		return
	}

	if !live.IsTransportError(err) {
		err = &live.TransportError{Op: "receive", Err: err}
	}
	r.logger.Error("transport failed", "error", err)
	if fn := s.cfg.Callbacks.OnError; fn != nil {
		fn(err)
	}
	s.teardown(r, "error")
}

// Stop closes the connection, stops capture, tears down playback and
// clears all transcript state. It is idempotent and may be called in any
// state, including while Start is in progress.
func (s *Session) Stop() {
	s.mu.Lock()
	r := s.run
	releasing := s.releasing
	s.mu.Unlock()

	if r == nil {
		if releasing != nil {
			<-releasing
		}
		return
	}
	s.teardown(r, "stopped")
}

func (s *Session) teardown(r *run, status string) {
	s.mu.Lock()
	if s.run != r {
		releasing := s.releasing
		s.mu.Unlock()
		if releasing != nil {
			<-releasing
		}
		return
	}
	s.run = nil
	listening := r.listening
	done := make(chan struct{})
	s.releasing = done
	s.mu.Unlock()

	r.cancel()

	// A run stopped during Start releases its own resources; wait for that
	// before reporting inactive so a new Start never races it for devices.
	if listening {
		if err := r.conn.Close(); err != nil {
			r.logger.Debug("close connection", "error", err)
		}
		r.handle.Stop()
		r.sched.Teardown()
		s.cfg.Metrics.SessionEnded(string(r.mode), status, time.Since(r.started))
	} else {
		<-r.released
		s.cfg.Metrics.SessionFailed(string(r.mode), "cancelled")
	}

	s.mu.Lock()
	s.resetTranscriptLocked()
	from := s.setStateLocked(StateInactive)
	s.releasing = nil
	close(done)
	s.mu.Unlock()

	s.cfg.Latency.Reset()
	s.notifyState(from, StateInactive)
	r.logger.Info("session stopped", "status", status, "duration", time.Since(r.started).Round(time.Millisecond))
}

// abort returns a run that failed during Start to inactive. Resources the
// run acquired have already been released by the caller.
func (s *Session) abort(r *run, reason string) {
	r.cancel()

	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}
	s.run = nil
	s.resetTranscriptLocked()
	from := s.setStateLocked(StateInactive)
	s.mu.Unlock()

	s.cfg.Metrics.SessionFailed(string(r.mode), reason)
	s.notifyState(from, StateInactive)
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:        s.state,
		PendingVoice: s.pendingVoice,
		History:      append([]Entry{}, s.history...),
		UserPartial:  s.userBuf.String(),
		ModelPartial: s.modelBuf.String(),
		FramesSent:   s.framesSent.Load(),
		DecodeErrors: s.decodeErrors.Load(),
	}
	if r := s.run; r != nil {
		snap.RunID = r.id
		snap.Mode = string(r.mode)
		snap.Voice = r.voice
		snap.StartedAt = r.started
		if r.listening {
			snap.Level = r.handle.Level()
			snap.NextPlaybackTime = r.sched.NextPlaybackTime()
			snap.ActivePlayback = r.sched.Active()
		}
	}
	return snap
}

func (s *Session) setStateLocked(to State) State {
	from := s.state
	s.state = to
	return from
}

func (s *Session) notifyState(from, to State) {
	if from == to {
		return
	}
	s.logger.Debug("state change", "from", from, "to", to)
	if fn := s.cfg.Callbacks.OnStateChange; fn != nil {
		fn(from, to)
	}
}

// commitLocked moves a non-empty partial buffer into the history.
func (s *Session) commitLocked(who Speaker, buf *strings.Builder) (Entry, bool) {
	text := strings.TrimSpace(buf.String())
	buf.Reset()
	if text == "" {
		return Entry{}, false
	}
	entry := Entry{Speaker: who, Text: text, At: time.Now()}
	s.history = append(s.history, entry)
	return entry, true
}

func (s *Session) resetTranscriptLocked() {
	s.history = nil
	s.userBuf.Reset()
	s.modelBuf.Reset()
	s.modelTurn = false
}

func (s *Session) partialNote(who Speaker, text string) func() {
	return func() {
		if fn := s.cfg.Callbacks.OnPartial; fn != nil {
			fn(who, text)
		}
	}
}

func (s *Session) entryNote(e Entry) func() {
	return func() {
		if fn := s.cfg.Callbacks.OnEntry; fn != nil {
			fn(e)
		}
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, capture.ErrUnsupported):
		return "unsupported"
	default:
		return "device_error"
	}
}
