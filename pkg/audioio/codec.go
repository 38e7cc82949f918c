package audioio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EncodeFrame encodes samples as little-endian PCM16 and base64 for the wire.
// DecodeToBytes(EncodeFrame(s)) returns exactly SamplesToBytes(s).
func EncodeFrame(samples []int16) string {
	return base64.StdEncoding.EncodeToString(SamplesToBytes(samples))
}

// DecodeToBytes decodes a wire string produced by EncodeFrame or the remote
// model. Characters outside the base64 alphabet, including whitespace, are
// rejected rather than skipped.
func DecodeToBytes(wire string) ([]byte, error) {
	for i := 0; i < len(wire); i++ {
		if !isBase64Char(wire[i]) {
			return nil, &DecodeError{Offset: i, Reason: fmt.Sprintf("invalid character %q", wire[i])}
		}
	}

	data, err := base64.StdEncoding.Strict().DecodeString(wire)
	if err != nil {
		var cie base64.CorruptInputError
		if errors.As(err, &cie) {
			return nil, &DecodeError{Offset: int(cie), Reason: "corrupt input"}
		}
		return nil, &DecodeError{Offset: -1, Reason: err.Error()}
	}
	return data, nil
}

func isBase64Char(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '+', c == '/', c == '=':
		return true
	}
	return false
}

// Buffer is a playable, de-interleaved block of normalized samples.
type Buffer struct {
	SampleRate int

	// Channels holds one slice per channel, each sample in [-1.0, 1.0).
	Channels [][]float32
}

// Frames returns the number of sample frames per channel.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Interleaved converts the buffer back into interleaved PCM16 samples.
func (b Buffer) Interleaved() []int16 {
	n := b.Frames()
	ch := len(b.Channels)
	out := make([]int16, n*ch)
	for i := 0; i < n; i++ {
		for c := 0; c < ch; c++ {
			v := b.Channels[c][i] * 32768
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			out[i*ch+c] = int16(v)
		}
	}
	return out
}

// BytesToBuffer interprets data as interleaved little-endian PCM16 and
// normalizes each sample by 32768. A trailing partial frame (fewer than
// channels*2 bytes) is dropped.
func BytesToBuffer(data []byte, sampleRate, channels int) Buffer {
	if channels <= 0 {
		channels = 1
	}
	frames := len(data) / (channels * 2)

	buf := Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(data[off:]))
			buf.Channels[c][i] = float32(s) / 32768
		}
	}
	return buf
}

// ParseSampleRate extracts the rate parameter from a MIME type such as
// "audio/pcm;rate=24000". It returns def when absent or malformed.
func ParseSampleRate(mimeType string, def int) int {
	for _, part := range strings.Split(mimeType, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.TrimSpace(k) != "rate" {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// PCMMimeType returns the MIME type for raw PCM16 at rate.
func PCMMimeType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}
