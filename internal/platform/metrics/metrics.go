package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the server.
// All Record methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	CommandsTotal     *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	StageFailures     *prometheus.CounterVec
	FlushTimeouts     prometheus.Counter
	Notifications     *prometheus.CounterVec
	ObserversActive   prometheus.Gauge
	PublishedAssets   prometheus.Counter
	RecordingDuration prometheus.Histogram
}

// New creates a Metrics instance with every collector registered on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voice3d"
	}

	registry := prometheus.NewRegistry()

	commandsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Controller commands by outcome",
		},
		[]string{"command", "outcome"},
	)

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	stageFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stage failures by error kind",
		},
		[]string{"stage", "kind"},
	)

	flushTimeouts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_timeouts_total",
			Help:      "Recordings whose write-complete signal missed the grace period",
		},
	)

	notifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Observer notifications by outcome",
		},
		[]string{"event", "outcome"},
	)

	observersActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers_active",
			Help:      "Connected websocket observers",
		},
	)

	publishedAssets := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_assets_total",
			Help:      "Models published to the artifact store",
		},
	)

	recordingDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Microphone capture length in seconds",
			Buckets:   []float64{0.5, 1, 2, 4, 6, 8, 10, 15},
		},
	)

	registry.MustRegister(
		commandsTotal,
		stageDuration,
		stageFailures,
		flushTimeouts,
		notifications,
		observersActive,
		publishedAssets,
		recordingDuration,
	)

	return &Metrics{
		registry:          registry,
		CommandsTotal:     commandsTotal,
		StageDuration:     stageDuration,
		StageFailures:     stageFailures,
		FlushTimeouts:     flushTimeouts,
		Notifications:     notifications,
		ObserversActive:   observersActive,
		PublishedAssets:   publishedAssets,
		RecordingDuration: recordingDuration,
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCommand counts a start/stop/upload command.
func (m *Metrics) RecordCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
}

// RecordStage records one stage run. kind is empty on success.
func (m *Metrics) RecordStage(stage string, duration time.Duration, kind string) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if kind != "" {
		m.StageFailures.WithLabelValues(stage, kind).Inc()
	}
}

// RecordFlushTimeout counts a missed write-complete signal.
func (m *Metrics) RecordFlushTimeout() {
	if m == nil {
		return
	}
	m.FlushTimeouts.Inc()
}

// RecordNotification counts delivered and skipped observer sends.
func (m *Metrics) RecordNotification(event string, delivered, skipped int) {
	if m == nil {
		return
	}
	if delivered > 0 {
		m.Notifications.WithLabelValues(event, "delivered").Add(float64(delivered))
	}
	if skipped > 0 {
		m.Notifications.WithLabelValues(event, "skipped").Add(float64(skipped))
	}
}

// SetObservers tracks the connected observer count.
func (m *Metrics) SetObservers(n int) {
	if m == nil {
		return
	}
	m.ObserversActive.Set(float64(n))
}

// RecordPublish counts a published model.
func (m *Metrics) RecordPublish() {
	if m == nil {
		return
	}
	m.PublishedAssets.Inc()
}

// RecordRecording observes a capture length.
func (m *Metrics) RecordRecording(d time.Duration) {
	if m == nil {
		return
	}
	m.RecordingDuration.Observe(d.Seconds())
}
