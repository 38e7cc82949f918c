package live

import (
	"context"
	"sync"

	"github.com/teslashibe/go-murmur/pkg/tools"
)

// Mock is a Dialer for testing. Each Dial creates a MockConn that the
// test drives with Deliver and Fail.
type Mock struct {
	// DialFunc, if set, runs before the connection is created. A non-nil
	// error fails the Dial.
	DialFunc func(ctx context.Context, opts Options) error

	// SendAudioFunc, if set, is installed on every MockConn this dialer
	// creates.
	SendAudioFunc func(m Media) error

	mu    sync.Mutex
	dials []Options
	conns []*MockConn
}

// NewMock creates a Mock dialer.
func NewMock() *Mock {
	return &Mock{}
}

// Dial implements Dialer.
func (m *Mock) Dial(ctx context.Context, opts Options) (Conn, error) {
	m.mu.Lock()
	m.dials = append(m.dials, opts)
	m.mu.Unlock()

	if m.DialFunc != nil {
		if err := m.DialFunc(ctx, opts); err != nil {
			return nil, &TransportError{Op: "dial", Err: err}
		}
	}

	c := &MockConn{pump: newPump(), SendAudioFunc: m.SendAudioFunc}
	m.mu.Lock()
	m.conns = append(m.conns, c)
	m.mu.Unlock()
	return c, nil
}

// DialCount returns how many times Dial was called.
func (m *Mock) DialCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dials)
}

// LastOptions returns the options of the most recent Dial.
func (m *Mock) LastOptions() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dials) == 0 {
		return Options{}
	}
	return m.dials[len(m.dials)-1]
}

// LastConn returns the most recently created connection, or nil.
func (m *Mock) LastConn() *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

// MockConn is an in-memory Conn.
type MockConn struct {
	pump *pump

	// SendAudioFunc, if set, is called for each SendAudio.
	SendAudioFunc func(m Media) error

	mu         sync.Mutex
	audio      []Media
	images     []Media
	responses  []tools.Response
	closeCalls int
}

// Deliver emits ev as if received from the server. It blocks while the
// event buffer is full and reports false if the conn is closed.
func (c *MockConn) Deliver(ev Event) bool {
	return c.pump.emit(ev)
}

// Fail ends the stream with a remote error.
func (c *MockConn) Fail(err error) {
	c.pump.finish(&TransportError{Op: "receive", Err: err})
}

func (c *MockConn) SendAudio(m Media) error {
	if c.pump.closedLocally() {
		return ErrClosed
	}
	if c.SendAudioFunc != nil {
		if err := c.SendAudioFunc(m); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.audio = append(c.audio, m)
	c.mu.Unlock()
	return nil
}

func (c *MockConn) SendImage(m Media) error {
	if c.pump.closedLocally() {
		return ErrClosed
	}
	c.mu.Lock()
	c.images = append(c.images, m)
	c.mu.Unlock()
	return nil
}

func (c *MockConn) SendToolResponses(responses []tools.Response) error {
	if c.pump.closedLocally() {
		return ErrClosed
	}
	c.mu.Lock()
	c.responses = append(c.responses, responses...)
	c.mu.Unlock()
	return nil
}

func (c *MockConn) Events() <-chan Event {
	return c.pump.events
}

func (c *MockConn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()

	if c.pump.shutdown() {
		c.pump.finish(nil)
	}
	return nil
}

// SentAudio returns the audio frames sent so far.
func (c *MockConn) SentAudio() []Media {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Media(nil), c.audio...)
}

// SentImages returns the images sent so far.
func (c *MockConn) SentImages() []Media {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Media(nil), c.images...)
}

// ToolResponses returns every tool response sent so far.
func (c *MockConn) ToolResponses() []tools.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]tools.Response(nil), c.responses...)
}

// CloseCalls returns how many times Close was called.
func (c *MockConn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// IsClosed reports whether Close was called.
func (c *MockConn) IsClosed() bool {
	return c.pump.closedLocally()
}

var (
	_ Dialer = (*Mock)(nil)
	_ Conn   = (*MockConn)(nil)
)
