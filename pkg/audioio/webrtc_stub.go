//go:build !webrtc

package audioio

import "log/slog"

const webrtcAvailable = false

func newWebRTCSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, NewDeviceError("webrtc", ErrUnsupported, nil)
}
