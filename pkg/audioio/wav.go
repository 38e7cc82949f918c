package audioio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// PCMToContainer wraps raw little-endian PCM sample bytes in a minimal
// RIFF/WAVE container so it can be played outside a streaming session
// (voice previews, studio speech). bitDepth must be 8, 16, 24 or 32 and
// pcm must hold a whole number of sample frames.
func PCMToContainer(pcm []byte, sampleRate, channels, bitDepth int) ([]byte, error) {
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("audioio: unsupported bit depth %d", bitDepth)
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("audioio: invalid format %d Hz x %d channels", sampleRate, channels)
	}

	blockAlign := channels * bitDepth / 8
	if len(pcm)%blockAlign != 0 {
		return nil, fmt.Errorf("audioio: %d bytes is not a multiple of block size %d", len(pcm), blockAlign)
	}
	byteRate := sampleRate * blockAlign

	var b bytes.Buffer
	b.Grow(wavHeaderSize + len(pcm))

	b.WriteString("RIFF")
	writeLE(&b, uint32(36+len(pcm)))
	b.WriteString("WAVE")

	b.WriteString("fmt ")
	writeLE(&b, uint32(16)) // PCM fmt chunk size
	writeLE(&b, uint16(1))  // format tag: PCM
	writeLE(&b, uint16(channels))
	writeLE(&b, uint32(sampleRate))
	writeLE(&b, uint32(byteRate))
	writeLE(&b, uint16(blockAlign))
	writeLE(&b, uint16(bitDepth))

	b.WriteString("data")
	writeLE(&b, uint32(len(pcm)))
	b.Write(pcm)

	return b.Bytes(), nil
}

// SamplesToContainer is PCMToContainer for 16-bit samples.
func SamplesToContainer(samples []int16, sampleRate, channels int) ([]byte, error) {
	return PCMToContainer(SamplesToBytes(samples), sampleRate, channels, 16)
}

func writeLE(b *bytes.Buffer, v any) {
	// bytes.Buffer writes never fail.
	_ = binary.Write(b, binary.LittleEndian, v)
}
