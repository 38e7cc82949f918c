package capture

import "sync"

// LevelMeter tracks a loudness estimate with instant attack and
// exponential release.
type LevelMeter struct {
	mu    sync.Mutex
	decay float64
	level float64
}

// NewLevelMeter creates a meter with the given release factor.
func NewLevelMeter(decay float64) *LevelMeter {
	return &LevelMeter{decay: decay}
}

// Update folds in the RMS of the next frame and returns the new level,
// max(rms, previous*decay).
func (m *LevelMeter) Update(rms float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.level = max(rms, m.level*m.decay)
	return m.level
}

// Level returns the current level.
func (m *LevelMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Reset sets the level to zero.
func (m *LevelMeter) Reset() {
	m.mu.Lock()
	m.level = 0
	m.mu.Unlock()
}
