package capture

import (
	"fmt"
	"strings"
)

// Mode selects which inputs a session captures.
type Mode string

const (
	// ModeVoice captures the microphone only.
	ModeVoice Mode = "voice"
	// ModeCamera adds camera stills.
	ModeCamera Mode = "camera"
	// ModeScreen adds screen stills.
	ModeScreen Mode = "screen"
)

// Modes lists every mode.
var Modes = []Mode{ModeVoice, ModeCamera, ModeScreen}

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeVoice, ModeCamera, ModeScreen:
		return m, nil
	case "":
		return ModeVoice, nil
	default:
		return "", fmt.Errorf("capture: unknown mode %q", s)
	}
}

// HasVideo reports whether the mode samples video stills.
func (m Mode) HasVideo() bool {
	return m == ModeCamera || m == ModeScreen
}

func (m Mode) String() string {
	return string(m)
}
