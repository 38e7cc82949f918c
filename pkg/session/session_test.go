package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/capture"
	"github.com/teslashibe/go-murmur/pkg/live"
	"github.com/teslashibe/go-murmur/pkg/telemetry"
	"github.com/teslashibe/go-murmur/pkg/tools"
)

type harness struct {
	t       *testing.T
	session *Session
	dialer  *live.Mock
	metrics *telemetry.Metrics

	mu         sync.Mutex
	sources    []*audioio.MockSource
	outputs    []*audioio.MockOutput
	sourceOpts []audioio.MockSourceOption
	states     []State
	entries    []Entry
	errs       []error
	voices     []string
	levels     []float64
}

func newHarness(t *testing.T, opts ...audioio.MockSourceOption) *harness {
	h := &harness{t: t, dialer: live.NewMock(), metrics: telemetry.NewMetrics("test"), sourceOpts: opts}

	pipeline := capture.NewPipeline(capture.Config{OpenSource: h.openSource})

	c := capture.DefaultConstraints()
	c.BlockSize = 4

	var s *Session
	dispatcher := tools.NewDispatcher(tools.Config{
		Actions: voiceActions{onSelect: func(v string) error { return s.SelectVoice(v) }},
		Voices:  []string{"Puck", "Charon", "Kore"},
	})

	s = New(Config{
		Dialer:      h.dialer,
		Capture:     pipeline,
		Constraints: c,
		OpenOutput:  h.openOutput,
		Dispatcher:  dispatcher,
		Metrics:     h.metrics,
		Latency:     telemetry.NewLatencyTracker(10),
		Callbacks: Callbacks{
			OnStateChange: func(_, to State) {
				h.mu.Lock()
				h.states = append(h.states, to)
				h.mu.Unlock()
			},
			OnEntry: func(e Entry) {
				h.mu.Lock()
				h.entries = append(h.entries, e)
				h.mu.Unlock()
			},
			OnError: func(err error) {
				h.mu.Lock()
				h.errs = append(h.errs, err)
				h.mu.Unlock()
			},
			OnVoiceSelected: func(v string) {
				h.mu.Lock()
				h.voices = append(h.voices, v)
				h.mu.Unlock()
			},
			OnLevel: func(level float64) {
				h.mu.Lock()
				h.levels = append(h.levels, level)
				h.mu.Unlock()
			},
		},
	})
	h.session = s
	t.Cleanup(s.Stop)
	return h
}

type voiceActions struct {
	onSelect func(string) error
}

func (voiceActions) Navigate(string) error { return nil }
func (a voiceActions) SelectVoice(v string) error { return a.onSelect(v) }

func (h *harness) openSource(cfg audioio.Config) (audioio.Source, error) {
	opts := append([]audioio.MockSourceOption{audioio.WithManualFeed()}, h.sourceOpts...)
	src := audioio.NewMockSource(cfg, nil, opts...)
	h.mu.Lock()
	h.sources = append(h.sources, src)
	h.mu.Unlock()
	return src, nil
}

func (h *harness) openOutput(context.Context) (audioio.Output, error) {
	out := audioio.NewMockOutput()
	h.mu.Lock()
	h.outputs = append(h.outputs, out)
	h.mu.Unlock()
	return out, nil
}

func (h *harness) source() *audioio.MockSource {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.sources)
	return h.sources[len(h.sources)-1]
}

func (h *harness) output() *audioio.MockOutput {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.outputs)
	return h.outputs[len(h.outputs)-1]
}

func (h *harness) levelsSeen() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.levels...)
}

func (h *harness) start(mode capture.Mode) *live.MockConn {
	h.t.Helper()
	err := h.session.Start(context.Background(), StartRequest{
		Mode:       mode,
		Voice:      "Puck",
		Credential: "test-key",
	})
	require.NoError(h.t, err)
	require.Equal(h.t, StateListening, h.session.State())
	return h.dialer.LastConn()
}

func (h *harness) deliver(conn *live.MockConn, events ...live.Event) {
	h.t.Helper()
	for _, ev := range events {
		require.True(h.t, conn.Deliver(ev))
	}
}

func (h *harness) eventually(cond func(Snapshot) bool, msg string) Snapshot {
	h.t.Helper()
	var snap Snapshot
	require.Eventually(h.t, func() bool {
		snap = h.session.Snapshot()
		return cond(snap)
	}, 2*time.Second, 2*time.Millisecond, msg)
	return snap
}

func pcmChunk(seconds float64) live.Audio {
	return live.Audio{Encoded: audioio.EncodeFrame(make([]int16, int(seconds*24000))), SampleRate: 24000}
}

func TestStart_MissingCredential(t *testing.T) {
	h := newHarness(t)

	err := h.session.Start(context.Background(), StartRequest{Mode: capture.ModeVoice, Voice: "Puck"})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	assert.Equal(t, 0, h.dialer.DialCount())
	assert.Empty(t, h.sources, "no device opened")
	assert.Equal(t, StateInactive, h.session.State())
}

func TestStart_UnknownMode(t *testing.T) {
	h := newHarness(t)

	err := h.session.Start(context.Background(), StartRequest{Mode: "radar", Credential: "k"})
	assert.True(t, IsConfigurationError(err))
	assert.Empty(t, h.sources)
}

func TestStart_DeclaresToolsAndVoice(t *testing.T) {
	h := newHarness(t)
	h.start(capture.ModeVoice)

	opts := h.dialer.LastOptions()
	assert.Equal(t, "Puck", opts.Voice)
	assert.Equal(t, capture.ModeVoice, opts.Mode)
	assert.Equal(t, "test-key", opts.Credential)
	assert.Len(t, opts.Tools, 3)
	assert.Equal(t, []State{StateInitializing, StateListening}, h.states)

	snap := h.session.Snapshot()
	assert.NotEmpty(t, snap.RunID)
	assert.Equal(t, "voice", snap.Mode)
}

func TestStart_WhileActive(t *testing.T) {
	h := newHarness(t)
	h.start(capture.ModeVoice)

	err := h.session.Start(context.Background(), StartRequest{Credential: "k"})
	assert.ErrorIs(t, err, ErrActive)
	assert.Equal(t, 1, h.dialer.DialCount())
}

func TestStart_PermissionDenied(t *testing.T) {
	h := newHarness(t, audioio.WithStartError(capture.ErrPermissionDenied))

	err := h.session.Start(context.Background(), StartRequest{Mode: capture.ModeVoice, Credential: "k"})
	require.Error(t, err)
	assert.True(t, capture.IsPermissionDenied(err))

	var de *capture.DeviceError
	assert.True(t, errors.As(err, &de))

	assert.Equal(t, 0, h.dialer.DialCount(), "transport never opened")
	assert.Equal(t, StateInactive, h.session.State())
	assert.Equal(t, []State{StateInitializing, StateInactive}, h.states)
}

func TestStart_ScreenUnsupported(t *testing.T) {
	h := newHarness(t)

	err := h.session.Start(context.Background(), StartRequest{Mode: capture.ModeScreen, Credential: "k"})
	assert.ErrorIs(t, err, capture.ErrUnsupported)
	assert.Equal(t, 0, h.dialer.DialCount())
	assert.Equal(t, StateInactive, h.session.State())
}

func TestStart_TransportFailure(t *testing.T) {
	h := newHarness(t)
	h.dialer.DialFunc = func(context.Context, live.Options) error {
		return errors.New("handshake refused")
	}

	err := h.session.Start(context.Background(), StartRequest{Mode: capture.ModeVoice, Credential: "k"})
	require.Error(t, err)
	assert.True(t, live.IsTransportError(err))

	assert.False(t, h.source().Running(), "capture released")
	assert.True(t, h.output().Closed(), "playback released")
	assert.Equal(t, StateInactive, h.session.State())
}

func TestStop_DuringInitialization(t *testing.T) {
	h := newHarness(t)

	entered := make(chan struct{})
	h.dialer.DialFunc = func(ctx context.Context, _ live.Options) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.session.Start(context.Background(), StartRequest{Mode: capture.ModeVoice, Credential: "k"})
	}()

	<-entered
	assert.Equal(t, StateInitializing, h.session.State())
	h.session.Stop()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	assert.Equal(t, StateInactive, h.session.State())
	assert.False(t, h.source().Running())
	assert.True(t, h.output().Closed())
}

func TestStop_DuringInitializationReleasesBeforeReturning(t *testing.T) {
	h := newHarness(t)

	entered := make(chan struct{})
	h.dialer.DialFunc = func(ctx context.Context, _ live.Options) error {
		close(entered)
		<-ctx.Done()
		// Give Stop a chance to report inactive before devices are released.
		time.Sleep(20 * time.Millisecond)
		return ctx.Err()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.session.Start(context.Background(), StartRequest{Mode: capture.ModeVoice, Credential: "k"})
	}()

	<-entered
	h.session.Stop()

	assert.False(t, h.source().Running(), "capture released when Stop returns")
	assert.True(t, h.output().Closed(), "playback released when Stop returns")
	assert.Equal(t, StateInactive, h.session.State())

	assert.ErrorIs(t, <-errCh, ErrStopped)

	// The devices are free, so a new session starts cleanly.
	h.dialer.DialFunc = nil
	h.start(capture.ModeVoice)
	assert.True(t, h.source().Running())
}

func TestSession_LevelReportedWhenSendFails(t *testing.T) {
	h := newHarness(t)
	h.dialer.SendAudioFunc = func(live.Media) error { return errors.New("link down") }
	conn := h.start(capture.ModeVoice)

	require.True(t, h.source().Push([]int16{16384, -16384, 16384, -16384, 0, 0, 0, 0}))

	require.Eventually(t, func() bool { return len(h.levelsSeen()) == 2 }, 2*time.Second, 2*time.Millisecond)
	levels := h.levelsSeen()
	assert.InDelta(t, 0.5, levels[0], 0.001)
	assert.InDelta(t, 0.35, levels[1], 0.001)

	assert.Empty(t, conn.SentAudio())
	assert.Equal(t, int64(0), h.session.Snapshot().FramesSent)
}

func TestSession_ForwardsFramesInOrder(t *testing.T) {
	h := newHarness(t)
	conn := h.start(capture.ModeVoice)

	require.True(t, h.source().Push([]int16{1, 2, 3, 4, 5, 6, 7, 8}))

	require.Eventually(t, func() bool { return len(conn.SentAudio()) == 2 }, 2*time.Second, 2*time.Millisecond)
	sent := conn.SentAudio()
	assert.Equal(t, "audio/pcm;rate=16000", sent[0].MIMEType)
	assert.Equal(t, audioio.EncodeFrame([]int16{1, 2, 3, 4}), sent[0].Encoded)
	assert.Equal(t, audioio.EncodeFrame([]int16{5, 6, 7, 8}), sent[1].Encoded)
	assert.Equal(t, int64(2), h.session.Snapshot().FramesSent)
}

func TestSession_NormalTurn(t *testing.T) {
	h := newHarness(t)
	conn := h.start(capture.ModeVoice)

	h.deliver(conn,
		live.InputTranscript{Text: "What's the "},
		live.InputTranscript{Text: "weather?"},
	)
	snap := h.eventually(func(s Snapshot) bool { return s.UserPartial == "What's the weather?" }, "user partial")
	assert.Equal(t, StateListening, snap.State)

	h.deliver(conn, live.OutputTranscript{Text: "Sunny "})
	snap = h.eventually(func(s Snapshot) bool { return s.State == StateSpeaking }, "speaking")
	require.Len(t, snap.History, 1)
	assert.Equal(t, Entry{Speaker: SpeakerUser, Text: "What's the weather?", At: snap.History[0].At}, snap.History[0])
	assert.Empty(t, snap.UserPartial)

	h.deliver(conn,
		pcmChunk(0.5),
		live.OutputTranscript{Text: "and warm."},
		pcmChunk(0.5),
		live.TurnComplete{},
	)
	snap = h.eventually(func(s Snapshot) bool { return s.State == StateListening && len(s.History) == 2 }, "turn complete")

	assert.Equal(t, SpeakerModel, snap.History[1].Speaker)
	assert.Equal(t, "Sunny and warm.", snap.History[1].Text)
	assert.Empty(t, snap.ModelPartial)
	assert.InDelta(t, 1.0, snap.NextPlaybackTime, 1e-9)

	scheduled := h.output().Scheduled()
	require.Len(t, scheduled, 2)
	assert.InDelta(t, 0.5, scheduled[1].At, 1e-9)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.entries, 2)
	assert.Equal(t, SpeakerUser, h.entries[0].Speaker)
	assert.Equal(t, SpeakerModel, h.entries[1].Speaker)
}

func TestSession_TurnCompleteCommitsUserBeforeModel(t *testing.T) {
	h := newHarness(t)

	// Model speaks first, then the user's late transcript arrives before
	// the turn ends.
	conn := h.start(capture.ModeVoice)
	h.deliver(conn,
		live.OutputTranscript{Text: "Hello!"},
		live.InputTranscript{Text: "hi"},
		live.TurnComplete{},
	)

	snap := h.eventually(func(s Snapshot) bool { return len(s.History) == 2 }, "two entries")
	assert.Equal(t, SpeakerUser, snap.History[0].Speaker)
	assert.Equal(t, "hi", snap.History[0].Text)
	assert.Equal(t, SpeakerModel, snap.History[1].Speaker)
}

func TestSession_BargeIn(t *testing.T) {
	h := newHarness(t)
	conn := h.start(capture.ModeVoice)

	h.deliver(conn,
		live.InputTranscript{Text: "Tell me a story"},
		live.OutputTranscript{Text: "Once upon a time"},
		pcmChunk(1),
		pcmChunk(1),
	)
	snap := h.eventually(func(s Snapshot) bool { return s.ActivePlayback == 2 }, "two queued chunks")
	assert.Equal(t, StateSpeaking, snap.State)
	assert.InDelta(t, 2.0, snap.NextPlaybackTime, 1e-9)

	h.deliver(conn, live.Interrupted{})
	snap = h.eventually(func(s Snapshot) bool { return s.State == StateListening }, "listening after barge-in")

	assert.Equal(t, 0, snap.ActivePlayback)
	assert.Equal(t, 0.0, snap.NextPlaybackTime)
	assert.Empty(t, snap.ModelPartial)
	require.Len(t, snap.History, 1, "interrupted model turn is not committed")
	for _, p := range h.output().Scheduled() {
		assert.True(t, p.Stopped())
	}

	// The next model turn starts a fresh speaking phase.
	h.deliver(conn, live.OutputTranscript{Text: "Sure, "})
	snap = h.eventually(func(s Snapshot) bool { return s.State == StateSpeaking }, "speaking again")
	assert.Equal(t, "Sure, ", snap.ModelPartial)
}

func TestSession_DecodeErrorIsDropped(t *testing.T) {
	h := newHarness(t)
	conn := h.start(capture.ModeVoice)

	h.deliver(conn, live.Audio{Encoded: "not*base64"}, pcmChunk(0.25))

	snap := h.eventually(func(s Snapshot) bool { return s.ActivePlayback == 1 }, "valid chunk scheduled")
	assert.Equal(t, int64(1), snap.DecodeErrors)
	assert.Equal(t, StateListening, snap.State)
	assert.InDelta(t, 0.25, snap.NextPlaybackTime, 1e-9)
}

func TestSession_ToolCalls(t *testing.T) {
	h := newHarness(t)
	conn := h.start(capture.ModeVoice)

	h.deliver(conn, live.ToolCall{Calls: []tools.Request{
		{ID: "c1", Name: tools.NameSelectVoice, Args: map[string]any{"number": float64(2)}},
		{ID: "c2", Name: tools.NameSelectVoice, Args: map[string]any{"number": float64(9)}},
		{ID: "c3", Name: "launch_rocket"},
	}})

	require.Eventually(t, func() bool { return len(conn.ToolResponses()) == 3 }, 2*time.Second, 2*time.Millisecond)
	resp := conn.ToolResponses()

	assert.Equal(t, "c1", resp[0].ID)
	assert.Contains(t, resp[0].Result, "Charon")
	assert.Equal(t, "c2", resp[1].ID)
	assert.True(t, strings.HasPrefix(resp[1].Result, "invalid"))
	assert.Equal(t, "c3", resp[2].ID)
	assert.Equal(t, "OK", resp[2].Result)

	snap := h.session.Snapshot()
	assert.Equal(t, "Charon", snap.PendingVoice)
	assert.Equal(t, "Puck", snap.Voice, "running session keeps its voice")

	h.mu.Lock()
	assert.Equal(t, []string{"Charon"}, h.voices)
	h.mu.Unlock()
}

func TestSession_RemoteFailure(t *testing.T) {
	h := newHarness(t)
	conn := h.start(capture.ModeVoice)

	h.deliver(conn, live.InputTranscript{Text: "hello"})
	conn.Fail(errors.New("socket reset"))

	h.eventually(func(s Snapshot) bool { return s.State == StateInactive }, "inactive after failure")

	h.mu.Lock()
	require.Len(t, h.errs, 1)
	assert.True(t, live.IsTransportError(h.errs[0]))
	h.mu.Unlock()

	assert.False(t, h.source().Running())
	assert.True(t, h.output().Closed())
	assert.Empty(t, h.session.Snapshot().UserPartial)
}

func TestStop_Idempotent(t *testing.T) {
	h := newHarness(t)
	conn := h.start(capture.ModeVoice)

	h.deliver(conn,
		live.InputTranscript{Text: "one"},
		live.OutputTranscript{Text: "two"},
		pcmChunk(1),
		live.TurnComplete{},
	)
	h.eventually(func(s Snapshot) bool { return len(s.History) == 2 }, "history")

	h.session.Stop()
	h.session.Stop()

	snap := h.session.Snapshot()
	assert.Equal(t, StateInactive, snap.State)
	assert.Empty(t, snap.History)
	assert.Empty(t, snap.RunID)
	assert.Equal(t, 0, snap.ActivePlayback)

	assert.True(t, conn.IsClosed())
	assert.False(t, h.source().Running())
	assert.True(t, h.output().Closed())

	// A stopped session can start again.
	h.start(capture.ModeVoice)
	assert.Equal(t, 2, h.dialer.DialCount())
}

func TestStop_WhenInactive(t *testing.T) {
	h := newHarness(t)
	assert.NotPanics(t, h.session.Stop)
	assert.Equal(t, StateInactive, h.session.State())
}

func TestHandleEvent_IgnoredWhenInactive(t *testing.T) {
	h := newHarness(t)
	h.session.HandleEvent(live.OutputTranscript{Text: "ghost"})
	assert.Equal(t, StateInactive, h.session.State())
	assert.Empty(t, h.session.Snapshot().ModelPartial)
}
