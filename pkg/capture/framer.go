package capture

// framer re-slices a sample stream into fixed-size blocks.
type framer struct {
	size int
	buf  []int16
}

func newFramer(size int) *framer {
	return &framer{size: size, buf: make([]int16, 0, size)}
}

// push appends samples and calls emit once per completed block, in order.
// Each emitted block is a fresh slice.
func (f *framer) push(samples []int16, emit func(block []int16)) {
	for len(samples) > 0 {
		n := min(f.size-len(f.buf), len(samples))
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]

		if len(f.buf) == f.size {
			block := make([]int16, f.size)
			copy(block, f.buf)
			f.buf = f.buf[:0]
			emit(block)
		}
	}
}

// pending returns the number of buffered samples short of a block.
func (f *framer) pending() int {
	return len(f.buf)
}
