package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// It generates synthetic audio (silence or sine wave) on a ticker, or
// delivers only what the test pushes when created WithManualFeed.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Chunk
	stopCh   chan struct{}

	startErr error
	manual   bool
	starts   atomic.Int32

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithStartError makes Start fail with err, as a denied or missing device would.
func WithStartError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.startErr = err
	}
}

// WithManualFeed disables the generator; chunks arrive only through Push.
func WithManualFeed() MockSourceOption {
	return func(m *MockSource) {
		m.manual = true
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		streamCh:  make(chan Chunk, 64),
		stopCh:    make(chan struct{}),
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.starts.Add(1)

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.startErr != nil {
		return NewDeviceError("mock", m.startErr, nil)
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan Chunk, 64)

	if !m.manual {
		go m.generateLoop(ctx, m.stopCh)
	}

	m.logger.Debug("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
	)

	return nil
}

// StartCalls reports how many times Start was called.
func (m *MockSource) StartCalls() int {
	return int(m.starts.Load())
}

func (m *MockSource) generateLoop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = m.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.deliver(m.generateChunk(), stopCh)
		}
	}
}

// Push delivers samples as one chunk. It reports false if the source is
// not running or its buffer is full.
func (m *MockSource) Push(samples []int16) bool {
	m.mu.Lock()
	running := m.running
	stopCh := m.stopCh
	m.mu.Unlock()
	if !running {
		return false
	}
	return m.deliver(Chunk{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	}, stopCh)
}

func (m *MockSource) deliver(chunk Chunk, stopCh chan struct{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-stopCh:
		return false
	default:
	}

	select {
	case m.streamCh <- chunk:
		m.chunksRead.Add(1)
		m.samplesRead.Add(int64(len(chunk.Samples)))
		return true
	default:
		m.overruns.Add(1)
		m.logger.Debug("mock source: buffer full, dropping chunk")
		return false
	}
}

func (m *MockSource) generateChunk() Chunk {
	bufferSize := m.cfg.BufferSize()
	samples := make([]int16, bufferSize*m.cfg.Channels)

	if m.frequency > 0 {
		for i := 0; i < bufferSize; i++ {
			sample := m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
			sampleInt := int16(sample * 32767)

			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = sampleInt
			}

			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	return Chunk{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	}
}

// Stop halts audio generation and closes the stream.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)
	close(m.streamCh)

	m.logger.Debug("mock audio source stopped")

	return nil
}

// Stream returns the audio chunk channel.
func (m *MockSource) Stream() <-chan Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Running reports whether the source is capturing.
func (m *MockSource) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	return SourceStats{
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     m.Running(),
		Backend:     "mock",
	}
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSink is a mock audio sink for testing.
// It records written audio and tracks statistics.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64

	buffer []Chunk
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &MockSink{
		cfg:    cfg,
		logger: logger,
		buffer: make([]Chunk, 0, 16),
	}
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	return nil
}

// Stop halts audio acceptance.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Write accepts an audio chunk.
func (m *MockSink) Write(ctx context.Context, chunk Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}

	m.buffer = append(m.buffer, chunk)
	m.chunksWritten.Add(1)
	m.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Clear discards buffered audio.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = m.buffer[:0]
	return nil
}

// Written returns a copy of the buffered chunks.
func (m *MockSink) Written() []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Chunk(nil), m.buffer...)
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.running = false
	m.mu.Unlock()
	return nil
}

var _ Sink = (*MockSink)(nil)

// MockOutput is an Output driven by a manual clock. Scheduled buffers
// complete when Advance moves the clock past their end.
type MockOutput struct {
	mu        sync.Mutex
	now       float64
	closed    bool
	scheduled []*MockPlaying
}

// NewMockOutput creates a MockOutput with its clock at 0.
func NewMockOutput() *MockOutput {
	return &MockOutput{}
}

// MockPlaying records one Schedule call.
type MockPlaying struct {
	Buffer Buffer
	At     float64

	once    sync.Once
	stopped atomic.Bool
	done    chan struct{}
}

// Stop implements Playing.
func (p *MockPlaying) Stop() {
	p.stopped.Store(true)
	p.finish()
}

// Done implements Playing.
func (p *MockPlaying) Done() <-chan struct{} {
	return p.done
}

// Stopped reports whether Stop was called.
func (p *MockPlaying) Stopped() bool {
	return p.stopped.Load()
}

// End returns the scheduled end time.
func (p *MockPlaying) End() float64 {
	return p.At + p.Buffer.Duration()
}

func (p *MockPlaying) finish() {
	p.once.Do(func() { close(p.done) })
}

// Now implements Output.
func (o *MockOutput) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Schedule implements Output.
func (o *MockOutput) Schedule(buf Buffer, at float64) (Playing, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, io.ErrClosedPipe
	}
	p := &MockPlaying{Buffer: buf, At: at, done: make(chan struct{})}
	o.scheduled = append(o.scheduled, p)
	return p, nil
}

// Advance moves the clock forward by d seconds and completes every buffer
// whose end is at or before the new time.
func (o *MockOutput) Advance(d float64) {
	o.mu.Lock()
	o.now += d
	now := o.now
	pending := append([]*MockPlaying(nil), o.scheduled...)
	o.mu.Unlock()

	for _, p := range pending {
		if p.End() <= now {
			p.finish()
		}
	}
}

// Scheduled returns every buffer scheduled so far, in call order.
func (o *MockOutput) Scheduled() []*MockPlaying {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*MockPlaying(nil), o.scheduled...)
}

// Closed reports whether Close was called.
func (o *MockOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close stops all scheduled buffers.
func (o *MockOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	pending := append([]*MockPlaying(nil), o.scheduled...)
	o.mu.Unlock()

	for _, p := range pending {
		p.finish()
	}
	return nil
}

var _ Output = (*MockOutput)(nil)
