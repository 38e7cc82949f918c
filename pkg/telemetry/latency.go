package telemetry

import (
	"sync"
	"time"
)

// Turn holds the timeline of one conversational turn. All latencies are
// measured from the first transcribed user word.
type Turn struct {
	UserStart   time.Time `json:"user_start"`
	FirstOutput time.Time `json:"first_output"`
	FirstAudio  time.Time `json:"first_audio"`
	Done        time.Time `json:"done"`

	TranscriptLatency time.Duration `json:"transcript_latency"`
	AudioLatency      time.Duration `json:"audio_latency"`
	TotalLatency      time.Duration `json:"total_latency"`

	AudioChunks int  `json:"audio_chunks"`
	Interrupted bool `json:"interrupted"`
}

// LatencyTracker collects turn timelines. It is goroutine-safe, and a nil
// *LatencyTracker records nothing.
type LatencyTracker struct {
	mu      sync.Mutex
	current Turn
	history []Turn
	limit   int
	now     func() time.Time

	onTurn func(Turn)
}

// NewLatencyTracker creates a tracker that keeps the last limit turns.
func NewLatencyTracker(limit int) *LatencyTracker {
	if limit <= 0 {
		limit = 100
	}
	return &LatencyTracker{
		history: make([]Turn, 0, limit),
		limit:   limit,
		now:     time.Now,
	}
}

// OnTurn sets a callback fired synchronously with each archived turn.
func (t *LatencyTracker) OnTurn(fn func(Turn)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTurn = fn
}

// MarkUserSpeech records user speech. Only the first mark of a turn counts.
func (t *LatencyTracker) MarkUserSpeech() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.UserStart.IsZero() {
		t.current.UserStart = t.now()
	}
}

// MarkOutputTranscript records the model's first transcribed word.
func (t *LatencyTracker) MarkOutputTranscript() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.FirstOutput.IsZero() {
		t.current.FirstOutput = t.now()
		t.current.TranscriptLatency = since(t.current.UserStart, t.current.FirstOutput)
	}
}

// MarkAudio records one model audio chunk and returns the first-audio
// latency when this is the turn's first chunk after user speech.
func (t *LatencyTracker) MarkAudio() (time.Duration, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.AudioChunks++
	if !t.current.FirstAudio.IsZero() {
		return 0, false
	}
	t.current.FirstAudio = t.now()
	t.current.AudioLatency = since(t.current.UserStart, t.current.FirstAudio)
	return t.current.AudioLatency, !t.current.UserStart.IsZero()
}

// MarkInterrupted flags the current turn as cut short.
func (t *LatencyTracker) MarkInterrupted() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.Interrupted = true
}

// MarkDone archives the current turn and starts a new one.
func (t *LatencyTracker) MarkDone() Turn {
	if t == nil {
		return Turn{}
	}
	t.mu.Lock()
	t.current.Done = t.now()
	t.current.TotalLatency = since(t.current.UserStart, t.current.Done)
	turn := t.current

	t.history = append(t.history, turn)
	if len(t.history) > t.limit {
		t.history = t.history[1:]
	}
	t.current = Turn{}
	fn := t.onTurn
	t.mu.Unlock()

	if fn != nil {
		fn(turn)
	}
	return turn
}

// Reset discards the current turn and history.
func (t *LatencyTracker) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = Turn{}
	t.history = t.history[:0]
}

// Current returns the in-progress turn.
func (t *LatencyTracker) Current() Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// History returns archived turns, oldest first.
func (t *LatencyTracker) History() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Turn(nil), t.history...)
}

// Average returns mean latencies over archived turns with user speech.
func (t *LatencyTracker) Average() Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	var avg Turn
	var n time.Duration
	for _, h := range t.history {
		if h.UserStart.IsZero() {
			continue
		}
		avg.TranscriptLatency += h.TranscriptLatency
		avg.AudioLatency += h.AudioLatency
		avg.TotalLatency += h.TotalLatency
		n++
	}
	if n == 0 {
		return Turn{}
	}
	avg.TranscriptLatency /= n
	avg.AudioLatency /= n
	avg.TotalLatency /= n
	return avg
}

// FormatLatency returns a one-line summary for logs.
func (t Turn) FormatLatency() string {
	return formatDuration(t.TranscriptLatency) + " transcript | " +
		formatDuration(t.AudioLatency) + " audio | " +
		formatDuration(t.TotalLatency) + " total"
}

func since(start, end time.Time) time.Duration {
	if start.IsZero() {
		return 0
	}
	return end.Sub(start)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
