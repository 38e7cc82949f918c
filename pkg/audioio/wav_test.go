package audioio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMToContainer(t *testing.T) {
	pcm := SamplesToBytes([]int16{1, 2, 3, 4})

	out, err := PCMToContainer(pcm, 24000, 1, 16)
	require.NoError(t, err)
	require.Len(t, out, wavHeaderSize+len(pcm))

	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(out[4:8]))
	assert.Equal(t, "WAVE", string(out[8:12]))
	assert.Equal(t, "fmt ", string(out[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[20:22]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[22:24]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(out[24:28]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(out[28:32]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(out[32:34]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(out[34:36]))
	assert.Equal(t, "data", string(out[36:40]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(out[40:44]))
	assert.Equal(t, pcm, out[44:])
}

func TestPCMToContainer_Invalid(t *testing.T) {
	tests := []struct {
		name                     string
		pcm                      []byte
		rate, channels, bitDepth int
	}{
		{"bit depth", make([]byte, 4), 24000, 1, 12},
		{"partial frame", make([]byte, 3), 24000, 1, 16},
		{"stereo partial frame", make([]byte, 6), 24000, 2, 16},
		{"zero rate", make([]byte, 4), 0, 1, 16},
		{"zero channels", make([]byte, 4), 24000, 0, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PCMToContainer(tt.pcm, tt.rate, tt.channels, tt.bitDepth)
			assert.Error(t, err)
		})
	}
}

func TestSamplesToContainer(t *testing.T) {
	out, err := SamplesToContainer([]int16{1, 2}, 16000, 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(out[22:24]))
	assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(out[32:34]))
}

func TestBrowserDeviceError(t *testing.T) {
	tests := []struct {
		name string
		want error
	}{
		{"NotAllowedError", ErrPermissionDenied},
		{"SecurityError", ErrPermissionDenied},
		{"NotFoundError", ErrDeviceNotFound},
		{"NotReadableError", ErrDeviceNotFound},
		{"NotSupportedError", ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := BrowserDeviceError("browser:mic", tt.name, "denied by user")
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "browser:mic")
		})
	}
}
