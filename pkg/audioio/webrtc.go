//go:build webrtc

package audioio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"gopkg.in/hraban/opus.v2"
)

const (
	webrtcAvailable = true

	opusSampleRate = 48000
	// 120ms at 48kHz, the largest Opus frame.
	opusMaxFrame = 5760

	trackWaitTimeout = 30 * time.Second
)

// WebRTCSource receives microphone audio from a browser peer. One instance
// lives for the whole process; each Start/Stop pair forwards decoded audio
// for one capture session.
type WebRTCSource struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	trackCh   chan struct{}
	hasTrack  bool
	deviceErr *DeviceError
	errCh     chan struct{}
	streamCh  chan Chunk
	running   bool
	closed    bool

	packets      atomic.Int64
	decodeErrors atomic.Int64
	chunksRead   atomic.Int64
	samplesRead  atomic.Int64
	overruns     atomic.Int64
}

// NewWebRTCSource creates a browser-bridged source.
func NewWebRTCSource(cfg Config, logger *slog.Logger) *WebRTCSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebRTCSource{
		cfg:      cfg,
		logger:   logger,
		trackCh:  make(chan struct{}),
		errCh:    make(chan struct{}),
		streamCh: make(chan Chunk),
	}
}

func newWebRTCSource(cfg Config, logger *slog.Logger) (Source, error) {
	return NewWebRTCSource(cfg, logger), nil
}

// Answer replaces any existing peer connection with one negotiated from offer.
func (s *WebRTCSource) Answer(ctx context.Context, offer string) (string, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return "", fmt.Errorf("create peer connection: %w", err)
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return "", fmt.Errorf("add audio transceiver: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		s.logger.Info("browser audio track", "codec", track.Codec().MimeType)
		s.markTrack()
		s.decodeLoop(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("peer connection state", "state", state.String())
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		pc.Close()
		return "", fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return "", ctx.Err()
	}

	s.mu.Lock()
	old := s.pc
	s.pc = pc
	s.hasTrack = false
	s.trackCh = make(chan struct{})
	s.deviceErr = nil
	s.errCh = make(chan struct{})
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return pc.LocalDescription().SDP, nil
}

// ReportDeviceError implements Negotiator.
func (s *WebRTCSource) ReportDeviceError(err *DeviceError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviceErr != nil {
		return
	}
	s.deviceErr = err
	close(s.errCh)
}

func (s *WebRTCSource) markTrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasTrack {
		s.hasTrack = true
		close(s.trackCh)
	}
}

func (s *WebRTCSource) decodeLoop(track *webrtc.TrackRemote) {
	decoder, err := opus.NewDecoder(opusSampleRate, 1)
	if err != nil {
		s.logger.Error("create opus decoder", "error", err)
		return
	}
	frame := make([]int16, opusMaxFrame)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			s.logger.Debug("browser track ended", "error", err)
			return
		}
		s.packets.Add(1)

		samples, err := s.decodePacket(decoder, pkt, frame)
		if err != nil {
			if s.decodeErrors.Add(1) <= 5 {
				s.logger.Warn("opus decode failed", "error", err, "payload_bytes", len(pkt.Payload))
			}
			continue
		}
		s.forward(samples)
	}
}

func (s *WebRTCSource) decodePacket(decoder *opus.Decoder, pkt *rtp.Packet, frame []int16) ([]int16, error) {
	n, err := decoder.Decode(pkt.Payload, frame)
	if err != nil {
		return nil, err
	}
	return Resample(frame[:n], opusSampleRate, s.cfg.SampleRate), nil
}

func (s *WebRTCSource) forward(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	out := make([]int16, len(samples))
	copy(out, samples)
	select {
	case s.streamCh <- Chunk{Samples: out, SampleRate: s.cfg.SampleRate, Channels: 1}:
		s.chunksRead.Add(1)
		s.samplesRead.Add(int64(len(out)))
	default:
		s.overruns.Add(1)
	}
}

// Start waits for the browser to deliver a track, or for it to report a
// device failure.
func (s *WebRTCSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("audioio: source closed")
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.deviceErr != nil {
		err := s.deviceErr
		s.mu.Unlock()
		return err
	}
	trackCh, errCh := s.trackCh, s.errCh
	s.mu.Unlock()

	timer := time.NewTimer(trackWaitTimeout)
	defer timer.Stop()

	select {
	case <-trackCh:
	case <-errCh:
		s.mu.Lock()
		err := s.deviceErr
		s.mu.Unlock()
		return err
	case <-timer.C:
		return NewDeviceError("webrtc", ErrDeviceNotFound, errors.New("no browser microphone track"))
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamCh = make(chan Chunk, 64)
	s.running = true
	return nil
}

// Stop ends forwarding for the current session. The peer connection stays up.
func (s *WebRTCSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.streamCh)
	return nil
}

// Stream returns the chunk channel for the current session.
func (s *WebRTCSource) Stream() <-chan Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *WebRTCSource) Config() Config { return s.cfg }

// Name returns "webrtc".
func (s *WebRTCSource) Name() string { return string(BackendWebRTC) }

// Close tears down the peer connection.
func (s *WebRTCSource) Close() error {
	_ = s.Stop()

	s.mu.Lock()
	s.closed = true
	pc := s.pc
	s.pc = nil
	s.mu.Unlock()

	if pc != nil {
		return pc.Close()
	}
	return nil
}

// Stats returns source statistics.
func (s *WebRTCSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     s.Name(),
	}
}

var (
	_ SourceWithStats = (*WebRTCSource)(nil)
	_ Negotiator      = (*WebRTCSource)(nil)
)
