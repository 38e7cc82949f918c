package audioio

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234, -4321}

	wire := EncodeFrame(samples)
	data, err := DecodeToBytes(wire)
	require.NoError(t, err)
	assert.Equal(t, SamplesToBytes(samples), data)
	assert.Equal(t, samples, BytesToSamples(data))
}

func TestEncodeFrame_Empty(t *testing.T) {
	assert.Equal(t, "", EncodeFrame(nil))

	data, err := DecodeToBytes("")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestDecodeToBytes_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		wire       string
		wantOffset int
	}{
		{"illegal character", "AAAA*AAA", 4},
		{"whitespace", "AA AA", 2},
		{"newline", "AAAA\nAAAA", 4},
		{"truncated", "AAA", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeToBytes(tt.wire)
			require.Error(t, err)
			assert.True(t, IsDecodeError(err))

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			if tt.wantOffset >= 0 {
				assert.Equal(t, tt.wantOffset, de.Offset)
			}
		})
	}
}

func TestBytesToBuffer(t *testing.T) {
	// 0x8000 = -32768, 0x4000 = 16384
	data := []byte{0x00, 0x80, 0x00, 0x40}

	buf := BytesToBuffer(data, 24000, 1)
	require.Len(t, buf.Channels, 1)
	assert.Equal(t, []float32{-1.0, 0.5}, buf.Channels[0])
	assert.Equal(t, 2, buf.Frames())
	assert.InDelta(t, 2.0/24000, buf.Duration(), 1e-12)
}

func TestBytesToBuffer_Stereo(t *testing.T) {
	samples := []int16{100, -100, 200, -200}
	buf := BytesToBuffer(SamplesToBytes(samples), 24000, 2)

	require.Len(t, buf.Channels, 2)
	assert.Equal(t, 2, buf.Frames())
	assert.Equal(t, samples, buf.Interleaved())
}

func TestBytesToBuffer_PartialFrame(t *testing.T) {
	// Three bytes is one full mono frame plus a stray byte.
	buf := BytesToBuffer([]byte{0x01, 0x00, 0xFF}, 24000, 1)
	assert.Equal(t, 1, buf.Frames())

	// Six bytes is one full stereo frame plus half of the next.
	buf = BytesToBuffer(make([]byte, 6), 24000, 2)
	assert.Equal(t, 1, buf.Frames())
}

func TestDecodedAudio_EndToEnd(t *testing.T) {
	wire := base64.StdEncoding.EncodeToString(make([]byte, 9600))

	data, err := DecodeToBytes(wire)
	require.NoError(t, err)

	buf := BytesToBuffer(data, OutputSampleRate, 1)
	assert.InDelta(t, 0.2, buf.Duration(), 1e-9)
}

func TestParseSampleRate(t *testing.T) {
	tests := []struct {
		mime string
		want int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", 24000},
		{"audio/pcm;rate=abc", 24000},
		{"", 24000},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSampleRate(tt.mime, 24000))
		})
	}
	assert.Equal(t, "audio/pcm;rate=16000", PCMMimeType(16000))
}
