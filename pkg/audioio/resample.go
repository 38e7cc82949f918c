package audioio

import (
	"encoding/binary"
	"math"
)

// Resample converts mono samples from fromRate to toRate by linear
// interpolation. Speech survives this well enough for the model on either
// side; music would want a proper filter.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 || fromRate <= 0 || toRate <= 0 {
		return samples
	}

	n := int(int64(len(samples)) * int64(toRate) / int64(fromRate))
	out := make([]int16, n)
	step := float64(fromRate) / float64(toRate)
	last := len(samples) - 1

	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		a, b := float64(samples[j]), float64(samples[j+1])
		out[i] = int16(a + (pos-float64(j))*(b-a))
	}
	return out
}

// BytesToSamples reads little-endian PCM16. An odd trailing byte is ignored.
func BytesToSamples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out
}

// SamplesToBytes writes samples as little-endian PCM16.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// StereoToMono folds interleaved L/R pairs into their mean.
func StereoToMono(samples []int16) []int16 {
	out := make([]int16, len(samples)/2)
	for i := range out {
		out[i] = int16((int32(samples[2*i]) + int32(samples[2*i+1])) / 2)
	}
	return out
}

// RMS is the root mean square of samples scaled to [0, 1], where a
// full-scale square wave reads 1.0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var acc float64
	for _, s := range samples {
		v := float64(s) / 32768
		acc += v * v
	}
	return math.Sqrt(acc / float64(len(samples)))
}
