package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-murmur/pkg/audioio"
)

type testRig struct {
	mu      sync.Mutex
	sources []*audioio.MockSource
	opts    []audioio.MockSourceOption
}

func (r *testRig) open(cfg audioio.Config) (audioio.Source, error) {
	opts := append([]audioio.MockSourceOption{audioio.WithManualFeed()}, r.opts...)
	src := audioio.NewMockSource(cfg, nil, opts...)
	r.mu.Lock()
	r.sources = append(r.sources, src)
	r.mu.Unlock()
	return src, nil
}

func (r *testRig) opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

func (r *testRig) last() *audioio.MockSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[len(r.sources)-1]
}

func smallConstraints() Constraints {
	c := DefaultConstraints()
	c.BlockSize = 4
	return c
}

func collect(h *Handle) <-chan Frame {
	ch := make(chan Frame, 64)
	h.SetFrameSink(func(f Frame) { ch <- f })
	return ch
}

func nextFrame(t *testing.T, ch <-chan Frame) Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"voice", ModeVoice, false},
		{"Camera", ModeCamera, false},
		{" screen ", ModeScreen, false},
		{"", ModeVoice, false},
		{"hologram", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConstraints_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Constraints)
		wantErr bool
	}{
		{"default", func(*Constraints) {}, false},
		{"zero block", func(c *Constraints) { c.BlockSize = 0 }, true},
		{"zero rate", func(c *Constraints) { c.SampleRate = 0 }, true},
		{"decay one", func(c *Constraints) { c.Decay = 1 }, true},
		{"camera without fps", func(c *Constraints) { c.Mode = ModeCamera; c.VideoFPS = 0 }, true},
		{"voice ignores fps", func(c *Constraints) { c.VideoFPS = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConstraints()
			tt.modify(&c)
			if tt.wantErr {
				assert.Error(t, c.Validate())
			} else {
				assert.NoError(t, c.Validate())
			}
		})
	}
}

func TestConstraints_Durations(t *testing.T) {
	c := DefaultConstraints()
	assert.Equal(t, 256*time.Millisecond, c.BlockDuration())
	assert.Equal(t, 250*time.Millisecond, c.VideoInterval())
}

func TestLevelMeter(t *testing.T) {
	m := NewLevelMeter(0.5)

	assert.Equal(t, 0.8, m.Update(0.8))
	assert.Equal(t, 0.4, m.Update(0.1))
	assert.Equal(t, 0.9, m.Update(0.9))
	assert.Equal(t, 0.45, m.Update(0))

	m.Reset()
	assert.Equal(t, 0.0, m.Level())
}

func TestLevelMeter_NeverBelowInputOrDecayedLevel(t *testing.T) {
	m := NewLevelMeter(0.7)
	inputs := []float64{0.1, 0.5, 0.05, 0, 0.3, 0.31, 0, 0, 1, 0.2}

	prev := 0.0
	for _, rms := range inputs {
		got := m.Update(rms)
		assert.GreaterOrEqual(t, got, rms)
		assert.GreaterOrEqual(t, got, prev*0.7-1e-12)
		assert.LessOrEqual(t, got, max(rms, prev))
		prev = got
	}
}

func TestFramer(t *testing.T) {
	f := newFramer(3)

	var blocks [][]int16
	emit := func(b []int16) { blocks = append(blocks, b) }

	f.push([]int16{1, 2}, emit)
	assert.Empty(t, blocks)
	assert.Equal(t, 2, f.pending())

	f.push([]int16{3, 4, 5, 6, 7}, emit)
	require.Len(t, blocks, 2)
	assert.Equal(t, []int16{1, 2, 3}, blocks[0])
	assert.Equal(t, []int16{4, 5, 6}, blocks[1])
	assert.Equal(t, 1, f.pending())

	// Emitted blocks do not alias the internal buffer.
	f.push([]int16{8, 9}, emit)
	assert.Equal(t, []int16{1, 2, 3}, blocks[0])
	assert.Equal(t, []int16{7, 8, 9}, blocks[2])
}

func TestPipeline_FramesInOrder(t *testing.T) {
	rig := &testRig{}
	p := NewPipeline(Config{OpenSource: rig.open})

	h, err := p.Start(context.Background(), smallConstraints())
	require.NoError(t, err)
	defer h.Stop()

	frames := collect(h)
	src := rig.last()

	require.True(t, src.Push([]int16{1, 2, 3}))
	require.True(t, src.Push([]int16{4, 5, 6, 7, 8, 9, 10}))

	f0 := nextFrame(t, frames)
	f1 := nextFrame(t, frames)

	assert.Equal(t, uint64(0), f0.Seq)
	assert.Equal(t, []int16{1, 2, 3, 4}, f0.Samples)
	assert.Equal(t, audioio.EncodeFrame(f0.Samples), f0.Encoded)
	assert.Equal(t, 16000, f0.SampleRate)

	assert.Equal(t, uint64(1), f1.Seq)
	assert.Equal(t, []int16{5, 6, 7, 8}, f1.Samples)
	assert.Equal(t, int64(2), h.Frames())
}

func TestPipeline_LevelSmoothing(t *testing.T) {
	rig := &testRig{}
	p := NewPipeline(Config{OpenSource: rig.open})

	h, err := p.Start(context.Background(), smallConstraints())
	require.NoError(t, err)
	defer h.Stop()

	frames := collect(h)
	src := rig.last()

	loud := []int16{16384, -16384, 16384, -16384}
	require.True(t, src.Push(loud))
	require.True(t, src.Push(make([]int16, 4)))

	first := nextFrame(t, frames)
	second := nextFrame(t, frames)

	assert.InDelta(t, 0.5, first.Level, 1e-9)
	assert.InDelta(t, 0.35, second.Level, 1e-9)
	assert.InDelta(t, 0.35, h.Level(), 1e-9)
}

func TestPipeline_DropsWithoutSink(t *testing.T) {
	rig := &testRig{}
	p := NewPipeline(Config{OpenSource: rig.open})

	h, err := p.Start(context.Background(), smallConstraints())
	require.NoError(t, err)
	defer h.Stop()

	require.True(t, rig.last().Push(make([]int16, 8)))

	require.Eventually(t, func() bool { return h.Dropped() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), h.Frames())
}

func TestPipeline_StopIsIdempotent(t *testing.T) {
	rig := &testRig{}
	p := NewPipeline(Config{OpenSource: rig.open})

	h, err := p.Start(context.Background(), smallConstraints())
	require.NoError(t, err)
	frames := collect(h)

	h.Stop()
	h.Stop()

	select {
	case <-h.Done():
	default:
		t.Fatal("capture goroutine still running after Stop")
	}
	assert.False(t, rig.last().Running())
	assert.False(t, rig.last().Push([]int16{1, 2, 3, 4}))
	assert.Empty(t, frames)
	assert.Equal(t, 0.0, h.Level())
}

func TestPipeline_PermissionDenied(t *testing.T) {
	rig := &testRig{opts: []audioio.MockSourceOption{audioio.WithStartError(ErrPermissionDenied)}}
	p := NewPipeline(Config{OpenSource: rig.open})

	h, err := p.Start(context.Background(), smallConstraints())
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, IsPermissionDenied(err))
	assert.True(t, IsDeviceError(err))
	assert.Equal(t, 1, rig.last().StartCalls())
	assert.False(t, rig.last().Running())
}

func TestPipeline_OpenFailureBecomesDeviceError(t *testing.T) {
	p := NewPipeline(Config{OpenSource: func(audioio.Config) (audioio.Source, error) {
		return nil, errors.New("no such card")
	}})

	_, err := p.Start(context.Background(), smallConstraints())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.False(t, IsPermissionDenied(err))
}

func TestPipeline_VideoModeWithoutGrabber(t *testing.T) {
	for _, mode := range []Mode{ModeCamera, ModeScreen} {
		t.Run(string(mode), func(t *testing.T) {
			rig := &testRig{}
			p := NewPipeline(Config{OpenSource: rig.open})
			assert.False(t, p.Supports(mode))

			_, err := p.Start(context.Background(), smallConstraints().WithMode(mode))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupported)
			assert.Equal(t, 0, rig.opened(), "no device touched")
		})
	}
}

func TestPipeline_InvalidConstraints(t *testing.T) {
	rig := &testRig{}
	p := NewPipeline(Config{OpenSource: rig.open})

	c := smallConstraints()
	c.BlockSize = -1
	_, err := p.Start(context.Background(), c)
	require.Error(t, err)
	assert.False(t, IsDeviceError(err))
	assert.Equal(t, 0, rig.opened())
}

func TestPipeline_ScreenStills(t *testing.T) {
	rig := &testRig{}
	screen := NewBrowserGrabber()
	p := NewPipeline(Config{OpenSource: rig.open, Screen: screen})
	require.True(t, p.Supports(ModeScreen))

	c := smallConstraints().WithMode(ModeScreen)
	c.VideoFPS = 100

	h, err := p.Start(context.Background(), c)
	require.NoError(t, err)
	defer h.Stop()

	images := make(chan Image, 8)
	h.SetImageSink(func(img Image) { images <- img })

	screen.Push([]byte{0xff, 0xd8, 0x01})

	select {
	case img := <-images:
		assert.Equal(t, "image/jpeg", img.MIMEType)
		assert.Equal(t, []byte{0xff, 0xd8, 0x01}, img.Data)
		assert.Equal(t, uint64(0), img.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("no still delivered")
	}

	// A still is delivered once.
	select {
	case <-images:
		t.Fatal("duplicate still")
	case <-time.After(50 * time.Millisecond):
	}

	h.StopVideo()
	h.StopVideo()
	screen.Push([]byte{0xff})
	data, err := screen.Grab(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data, "closed grabber discards pushes")
}

func TestPipeline_GrabberOpenFailureReleasesAudio(t *testing.T) {
	rig := &testRig{}
	screen := NewBrowserGrabber()
	screen.ReportDeviceError(audioio.BrowserDeviceError("screen", "NotAllowedError", "denied"))

	p := NewPipeline(Config{OpenSource: rig.open, Screen: screen})

	_, err := p.Start(context.Background(), smallConstraints().WithMode(ModeScreen))
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))
	assert.False(t, rig.last().Running())

	// The reported error is consumed.
	h, err := p.Start(context.Background(), smallConstraints().WithMode(ModeScreen))
	require.NoError(t, err)
	h.Stop()
}

func TestShared_CloseOnlyStops(t *testing.T) {
	src := audioio.NewMockSource(audioio.DefaultConfig(), nil, audioio.WithManualFeed())
	defer src.Close()

	p := NewPipeline(Config{OpenSource: Shared(src)})

	h, err := p.Start(context.Background(), smallConstraints())
	require.NoError(t, err)
	h.Stop()
	assert.False(t, src.Running())

	// The underlying source can be started again for the next run.
	h, err = p.Start(context.Background(), smallConstraints())
	require.NoError(t, err)
	assert.True(t, src.Running())
	h.Stop()
}

func TestCameraStubUnsupported(t *testing.T) {
	if CameraAvailable() {
		t.Skip("built with gocv")
	}
	_, err := NewCameraGrabber("0", 80)
	assert.ErrorIs(t, err, ErrUnsupported)
}
