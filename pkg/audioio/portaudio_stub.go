//go:build !portaudio

package audioio

import "log/slog"

const portaudioAvailable = false

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, NewDeviceError("portaudio", ErrUnsupported, nil)
}

func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return nil, NewDeviceError("portaudio", ErrUnsupported, nil)
}
