// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Frame processing counters
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64 // no motion

	// Error counters
	ReadErrors     atomic.Uint64
	DetectorErrors atomic.Uint64

	// Remote stream
	StreamReconnects atomic.Uint64
	StreamConnected  atomic.Uint64 // 0 = disconnected, 1 = connected

	// WebSocket clients of /api/detections/ws
	ActiveClients atomic.Uint64

	// Latency of the last inference call in milliseconds
	InferenceLatencyMs atomic.Uint64

	detections *prometheus.CounterVec
	registry   *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors.
// retained reports the number of events currently held by the detection log;
// it may be nil.
func New(retained func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cycleup_detections_total",
				Help: "Detections ingested, by class",
			},
			[]string{"class"},
		),
	}
	m.registerPrometheusMetrics(retained)
	return m
}

func (m *Metrics) registerPrometheusMetrics(retained func() int) {
	m.registry.MustRegister(m.detections)

	gauges := []struct {
		name, help string
		value      *atomic.Uint64
	}{
		{"cycleup_frames_read_total", "Total frames read from the camera", &m.FramesRead},
		{"cycleup_frames_processed_total", "Total frames sent to the detector", &m.FramesProcessed},
		{"cycleup_frames_skipped_total", "Total frames skipped for lack of motion", &m.FramesSkipped},
		{"cycleup_read_errors_total", "Total camera read errors", &m.ReadErrors},
		{"cycleup_detector_errors_total", "Total detector errors", &m.DetectorErrors},
		{"cycleup_stream_reconnects_total", "Total reconnect attempts to the detection stream", &m.StreamReconnects},
		{"cycleup_stream_connected", "Whether the detection stream is connected (0/1)", &m.StreamConnected},
		{"cycleup_ws_clients", "Connected detection WebSocket clients", &m.ActiveClients},
		{"cycleup_inference_latency_ms", "Latency of the last inference call in milliseconds", &m.InferenceLatencyMs},
	}
	for _, g := range gauges {
		v := g.value
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	if retained != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "cycleup_detections_retained",
				Help: "Detections currently held in the aggregation window",
			},
			func() float64 { return float64(retained()) },
		))
	}
}

// ObserveDetection increments the per-class detection counter.
func (m *Metrics) ObserveDetection(class string) {
	m.detections.WithLabelValues(class).Inc()
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
