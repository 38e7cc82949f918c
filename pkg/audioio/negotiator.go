package audioio

import "context"

// Negotiator is implemented by sources whose microphone lives in a remote
// peer, such as the browser UI.
type Negotiator interface {
	// Answer accepts an SDP offer and returns the local SDP answer.
	Answer(ctx context.Context, offer string) (string, error)

	// ReportDeviceError records a device failure observed by the peer.
	// A pending Start returns it.
	ReportDeviceError(err *DeviceError)
}
