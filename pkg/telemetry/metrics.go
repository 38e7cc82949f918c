// Package telemetry exposes session metrics to Prometheus and tracks
// per-turn response latency.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the assistant. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec

	FramesSent     prometheus.Counter
	ImagesSent     prometheus.Counter
	AudioBytes     *prometheus.CounterVec
	AudioChunks    prometheus.Counter
	DecodeErrors   prometheus.Counter
	Interruptions  prometheus.Counter
	TurnsTotal     prometheus.Counter
	ToolCallsTotal *prometheus.CounterVec
	FirstAudio     prometheus.Histogram
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "murmur"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active live sessions",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions by mode and outcome",
		}, []string{"mode", "status"}),
		SessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"mode"}),

		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_sent_total",
			Help:      "Captured audio frames forwarded to the model",
		}),
		ImagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_images_sent_total",
			Help:      "Video stills forwarded to the model",
		}),
		AudioBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "PCM bytes streamed, by direction",
		}, []string{"direction"}),
		AudioChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_total",
			Help:      "Model audio chunks scheduled for playback",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_decode_errors_total",
			Help:      "Inbound audio chunks dropped as malformed",
		}),
		Interruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Barge-ins that flushed model speech",
		}),
		TurnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed model turns",
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls dispatched, by tool and status",
		}, []string{"tool", "status"}),
		FirstAudio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_seconds",
			Help:      "Time from the user's first transcribed word to the first model audio",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5},
		}),
	}

	m.registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionDuration,
		m.FramesSent,
		m.ImagesSent,
		m.AudioBytes,
		m.AudioChunks,
		m.DecodeErrors,
		m.Interruptions,
		m.TurnsTotal,
		m.ToolCallsTotal,
		m.FirstAudio,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionStarted records a session entering listening.
func (m *Metrics) SessionStarted(mode string) {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.WithLabelValues(mode, "started").Inc()
}

// SessionFailed records a start that never reached listening.
func (m *Metrics) SessionFailed(mode, reason string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(mode, reason).Inc()
}

// SessionEnded records the end of a session that reached listening.
func (m *Metrics) SessionEnded(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(mode, status).Inc()
	m.SessionDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// FrameSent records one outbound audio frame of n PCM bytes.
func (m *Metrics) FrameSent(n int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.AudioBytes.WithLabelValues("out").Add(float64(n))
}

// ImageSent records one outbound video still.
func (m *Metrics) ImageSent() {
	if m == nil {
		return
	}
	m.ImagesSent.Inc()
}

// AudioReceived records one scheduled inbound chunk of n PCM bytes.
func (m *Metrics) AudioReceived(n int) {
	if m == nil {
		return
	}
	m.AudioChunks.Inc()
	m.AudioBytes.WithLabelValues("in").Add(float64(n))
}

// DecodeError records one dropped inbound chunk.
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// Interrupted records a barge-in.
func (m *Metrics) Interrupted() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

// TurnCompleted records a completed model turn.
func (m *Metrics) TurnCompleted() {
	if m == nil {
		return
	}
	m.TurnsTotal.Inc()
}

// ToolCall records one dispatched tool call.
func (m *Metrics) ToolCall(name, status string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(name, status).Inc()
}

// ObserveFirstAudio records a response latency.
func (m *Metrics) ObserveFirstAudio(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstAudio.Observe(d.Seconds())
}
