package live

import "sync"

const eventBuffer = 64

// pump serializes inbound events from a single receive goroutine onto the
// Events channel, and stops delivering once the Conn is closed locally.
type pump struct {
	events chan Event
	done   chan struct{}

	closeOnce  sync.Once
	finishOnce sync.Once
}

func newPump() *pump {
	return &pump{
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// emit delivers ev, blocking until the consumer takes it or the Conn closes.
func (p *pump) emit(ev Event) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

// finish reports the end of the stream and closes the channel. A remote
// error is delivered unless the Conn was already closed locally.
func (p *pump) finish(err error) {
	p.finishOnce.Do(func() {
		if !p.closedLocally() {
			select {
			case p.events <- Closed{Err: err}:
			case <-p.done:
			}
		}
		close(p.events)
	})
}

// shutdown marks the Conn closed locally. It reports whether this call did it.
func (p *pump) shutdown() bool {
	first := false
	p.closeOnce.Do(func() {
		first = true
		close(p.done)
	})
	return first
}

func (p *pump) closedLocally() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
