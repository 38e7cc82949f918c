package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSource_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()

	require.NoError(t, src.Start(ctx))
	// Starting again is a no-op.
	require.NoError(t, src.Start(ctx))
	assert.True(t, src.Running())

	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
	assert.False(t, src.Running())
	assert.Equal(t, 2, src.StartCalls())
}

func TestMockSource_Stream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, src.Start(ctx))

	stream := src.Stream()
	for i := 0; i < 3; i++ {
		select {
		case chunk, ok := <-stream:
			require.True(t, ok)
			assert.Len(t, chunk.Samples, cfg.BufferSize()*cfg.Channels)
			assert.Equal(t, cfg.SampleRate, chunk.SampleRate)
			assert.Greater(t, RMS(chunk.Samples), 0.0)
		case <-ctx.Done():
			t.Fatal("timed out waiting for chunk")
		}
	}

	assert.GreaterOrEqual(t, src.Stats().ChunksRead, int64(3))
	assert.Equal(t, "mock", src.Stats().Backend)
}

func TestMockSource_ManualFeed(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil, WithManualFeed())

	assert.False(t, src.Push([]int16{1}), "push before start")

	require.NoError(t, src.Start(context.Background()))
	require.True(t, src.Push([]int16{1, 2, 3}))
	require.True(t, src.Push([]int16{4}))
	require.NoError(t, src.Stop())

	var got [][]int16
	for chunk := range src.Stream() {
		got = append(got, chunk.Samples)
	}
	assert.Equal(t, [][]int16{{1, 2, 3}, {4}}, got)
}

func TestMockSource_StartError(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil, WithStartError(ErrPermissionDenied))

	err := src.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	var de *DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "mock", de.Device)
	assert.False(t, src.Running())
}

func TestMockSource_Close(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil)

	ctx := context.Background()
	require.NoError(t, src.Start(ctx))
	require.NoError(t, src.Close())

	assert.Equal(t, io.ErrClosedPipe, src.Start(ctx))
	require.NoError(t, src.Close())
}

func TestMockSink_Write(t *testing.T) {
	sink := NewMockSink(DefaultOutputConfig(), nil)
	defer sink.Close()

	ctx := context.Background()
	chunk := Chunk{Samples: make([]int16, 480), SampleRate: 24000, Channels: 1}

	assert.Error(t, sink.Write(ctx, chunk), "write before start")

	require.NoError(t, sink.Start(ctx))
	require.NoError(t, sink.Write(ctx, chunk))
	assert.Len(t, sink.Written(), 1)

	require.NoError(t, sink.Clear())
	assert.Empty(t, sink.Written())
}

func TestMockOutput_Advance(t *testing.T) {
	out := NewMockOutput()

	buf := BytesToBuffer(make([]byte, 48000), 24000, 1) // 1s
	p1, err := out.Schedule(buf, 0)
	require.NoError(t, err)
	p2, err := out.Schedule(buf, 1)
	require.NoError(t, err)

	out.Advance(0.5)
	assertOpen(t, p1.Done())

	out.Advance(0.5)
	assertClosed(t, p1.Done())
	assertOpen(t, p2.Done())

	p2.Stop()
	assertClosed(t, p2.Done())
	assert.True(t, p2.(*MockPlaying).Stopped())
	assert.InDelta(t, 1.0, out.Now(), 1e-9)
}

func TestMockOutput_Close(t *testing.T) {
	out := NewMockOutput()
	p, err := out.Schedule(BytesToBuffer(make([]byte, 4), 24000, 1), 0)
	require.NoError(t, err)

	require.NoError(t, out.Close())
	assertClosed(t, p.Done())
	assert.True(t, out.Closed())

	_, err = out.Schedule(Buffer{}, 0)
	assert.Equal(t, io.ErrClosedPipe, err)
}

func TestDeviceOutput_PlaysInOrder(t *testing.T) {
	sink := NewMockSink(DefaultOutputConfig(), nil)
	out, err := NewDeviceOutput(context.Background(), sink, nil)
	require.NoError(t, err)
	defer out.Close()

	first := Buffer{SampleRate: 1000, Channels: [][]float32{{0.5, 0.5}}}
	second := Buffer{SampleRate: 1000, Channels: [][]float32{{-0.5}}}

	start := out.Now()
	p1, err := out.Schedule(first, start)
	require.NoError(t, err)
	p2, err := out.Schedule(second, start+first.Duration()+0.05)
	require.NoError(t, err)

	waitClosed(t, p1.Done())
	waitClosed(t, p2.Done())

	written := sink.Written()
	require.Len(t, written, 2)
	assert.Equal(t, []int16{16384, 16384}, written[0].Samples)
	assert.Equal(t, []int16{-16384}, written[1].Samples)
}

func TestDeviceOutput_StopBeforeStart(t *testing.T) {
	sink := NewMockSink(DefaultOutputConfig(), nil)
	out, err := NewDeviceOutput(context.Background(), sink, nil)
	require.NoError(t, err)
	defer out.Close()

	p, err := out.Schedule(Buffer{SampleRate: 1000, Channels: [][]float32{{0.1}}}, out.Now()+10)
	require.NoError(t, err)

	p.Stop()
	waitClosed(t, p.Done())
	assert.Empty(t, sink.Written())
}

type refusingSink struct {
	*MockSink
	closes int
}

func (s *refusingSink) Start(context.Context) error {
	return NewDeviceError("speaker", ErrDeviceNotFound, nil)
}

func (s *refusingSink) Close() error {
	s.closes++
	return s.MockSink.Close()
}

func TestDeviceOutput_StartFailureClosesSink(t *testing.T) {
	sink := &refusingSink{MockSink: NewMockSink(DefaultOutputConfig(), nil)}

	out, err := NewDeviceOutput(context.Background(), sink, nil)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Equal(t, 1, sink.closes)
}

func assertOpen(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("expected channel to be open")
	default:
	}
}

func assertClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	default:
		t.Fatal("expected channel to be closed")
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
