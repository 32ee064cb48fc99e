// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escpos-service/internal/escpos"
)

const namespace = "escpos"

// Metrics holds the service collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	sessions        *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	bytesDecoded    *prometheus.CounterVec
	instructions    *prometheus.CounterVec
	unknownCommands *prometheus.CounterVec
	decoderFatal    *prometheus.CounterVec
	relayResults    *prometheus.CounterVec
	relayDuration   prometheus.Histogram
	capturesStored  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates and registers the service metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "listener",
				Name:      "sessions_total",
				Help:      "Print job sessions handled, by outcome.",
			},
			[]string{"outcome"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "listener",
				Name:      "active_sessions",
				Help:      "Print job sessions currently open.",
			},
		),
		bytesDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "decoder",
				Name:      "bytes_total",
				Help:      "Bytes fed to decoders.",
			},
			[]string{"source"},
		),
		instructions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "decoder",
				Name:      "instructions_total",
				Help:      "Decoded instructions by kind.",
			},
			[]string{"kind"},
		),
		unknownCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "decoder",
				Name:      "unknown_commands_total",
				Help:      "Unrecognized commands by prefix.",
			},
			[]string{"prefix"},
		),
		decoderFatal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "decoder",
				Name:      "fatal_errors_total",
				Help:      "Streams abandoned by the decoder, by reason.",
			},
			[]string{"reason"},
		),
		relayResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "jobs_total",
				Help:      "Jobs relayed to the printer, by printer status.",
			},
			[]string{"status"},
		),
		relayDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "duration_seconds",
				Help:      "Time spent relaying a job to the printer.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		capturesStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "stored_total",
				Help:      "Captures persisted, by decoder status.",
			},
			[]string{"decoder_status"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessions,
		m.activeSessions,
		m.bytesDecoded,
		m.instructions,
		m.unknownCommands,
		m.decoderFatal,
		m.relayResults,
		m.relayDuration,
		m.capturesStored,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionStarted marks a listener session as open
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionEnded marks a listener session as closed with an outcome
func (m *Metrics) SessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessions.WithLabelValues(outcome).Inc()
}

// SessionRejected counts a connection refused at the session limit
func (m *Metrics) SessionRejected() {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues("rejected").Inc()
}

// RecordBytes counts bytes fed to a decoder
func (m *Metrics) RecordBytes(source string, n int) {
	if m == nil {
		return
	}
	m.bytesDecoded.WithLabelValues(source).Add(float64(n))
}

// RecordInstruction counts a decoded instruction
func (m *Metrics) RecordInstruction(inst escpos.Instruction) {
	if m == nil {
		return
	}
	m.instructions.WithLabelValues(inst.Kind.String()).Inc()
	if inst.Kind == escpos.KindUnknownCommand && len(inst.Raw) > 0 {
		m.unknownCommands.WithLabelValues(escpos.PrefixName(inst.Raw[0])).Inc()
	}
}

// RecordFatal counts a stream the decoder gave up on
func (m *Metrics) RecordFatal(reason string) {
	if m == nil {
		return
	}
	m.decoderFatal.WithLabelValues(reason).Inc()
}

// RecordRelay counts a relay attempt and its duration
func (m *Metrics) RecordRelay(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.relayResults.WithLabelValues(status).Inc()
	m.relayDuration.Observe(duration.Seconds())
}

// RecordCapture counts a persisted capture
func (m *Metrics) RecordCapture(decoderStatus string) {
	if m == nil {
		return
	}
	m.capturesStored.WithLabelValues(decoderStatus).Inc()
}

// RecordHTTPRequest counts an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
