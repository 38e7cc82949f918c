// Package playback schedules inbound model speech back-to-back on one
// output timeline and cancels it on barge-in.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-murmur/pkg/audioio"
	"github.com/teslashibe/go-murmur/pkg/live"
)

// ErrClosed is returned by Enqueue after Teardown.
var ErrClosed = errors.New("playback: scheduler closed")

// Stats counts scheduler activity.
type Stats struct {
	Scheduled    int64   `json:"scheduled"`
	Completed    int64   `json:"completed"`
	Flushed      int64   `json:"flushed"`
	Flushes      int64   `json:"flushes"`
	DecodeErrors int64   `json:"decode_errors"`
	Seconds      float64 `json:"seconds"`
}

// Scheduler owns an Output and the cursor where the next chunk starts.
type Scheduler struct {
	out    audioio.Output
	logger *slog.Logger

	mu     sync.Mutex
	next   float64
	active map[uint64]audioio.Playing
	seq    uint64
	closed bool
	stats  Stats
}

// NewScheduler creates a scheduler over out. The scheduler closes out on
// Teardown.
func NewScheduler(out audioio.Output, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		out:    out,
		logger: logger.With("component", "playback"),
		active: make(map[uint64]audioio.Playing),
	}
}

// Enqueue decodes chunk and schedules it at max(next, now), then advances
// next by its duration. A malformed chunk returns *audioio.DecodeError and
// schedules nothing.
func (s *Scheduler) Enqueue(chunk live.Audio) error {
	pcm, err := chunk.PCM()
	if err != nil {
		s.mu.Lock()
		s.stats.DecodeErrors++
		s.mu.Unlock()
		return err
	}

	buf := audioio.BytesToBuffer(pcm, chunk.Rate(), 1)
	if buf.Frames() == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	start := max(s.next, s.out.Now())
	p, err := s.out.Schedule(buf, start)
	if err != nil {
		return fmt.Errorf("playback: schedule at %.3fs: %w", start, err)
	}

	dur := buf.Duration()
	s.next = start + dur
	s.seq++
	id := s.seq
	s.active[id] = p
	s.stats.Scheduled++
	s.stats.Seconds += dur

	go s.await(id, p)
	return nil
}

func (s *Scheduler) await(id uint64, p audioio.Playing) {
	<-p.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; ok {
		delete(s.active, id)
		s.stats.Completed++
	}
}

// Flush stops every scheduled buffer, clears the active set and resets the
// cursor to zero.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Scheduler) flushLocked() {
	n := len(s.active)
	for id, p := range s.active {
		p.Stop()
		delete(s.active, id)
	}
	s.next = 0
	s.stats.Flushes++
	s.stats.Flushed += int64(n)

	if n > 0 {
		s.logger.Debug("playback flushed", "buffers", n)
	}
}

// Teardown flushes and closes the output. It is safe to call repeatedly
// and from any state.
func (s *Scheduler) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.flushLocked()
	s.closed = true
	s.mu.Unlock()

	if err := s.out.Close(); err != nil {
		s.logger.Warn("close output", "error", err)
	}
}

// NextPlaybackTime returns the time the next chunk would start at, or 0
// after a flush.
func (s *Scheduler) NextPlaybackTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Active returns the number of scheduled or playing buffers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
