// Package metrics holds the Prometheus collectors for the namespace, the
// remote transport and command execution. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chromium/axiom-sub003/fserr"
)

const namespace = "axiom"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Namespace operations
	OpsTotal   *prometheus.CounterVec
	OpDuration *prometheus.HistogramVec
	Backends   prometheus.Gauge

	// Command execution
	ExecTotal *prometheus.CounterVec

	// Remote transport
	RemoteSessions prometheus.Gauge
	RemoteMessages *prometheus.CounterVec
}

// New creates the collectors on a private registry, so several instances can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		OpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ops_total",
				Help:      "Total number of file system operations",
			},
			[]string{"backend", "op", "status"},
		),
		OpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "op_duration_seconds",
				Help:      "File system operation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"backend", "op"},
		),
		Backends: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backends",
				Help:      "Number of root file systems in the namespace",
			},
		),
		ExecTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exec_total",
				Help:      "Total number of executed commands",
			},
			[]string{"status"},
		),
		RemoteSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "remote_sessions",
				Help:      "Number of connected remote sessions",
			},
		),
		RemoteMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_messages_total",
				Help:      "Total number of remote protocol messages",
			},
			[]string{"direction"},
		),
	}
}

// Status labels an outcome: "ok" or the error kind.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return string(fserr.KindOf(err))
}

// ObserveOp records one operation that started at start.
func (m *Metrics) ObserveOp(backend, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OpsTotal.WithLabelValues(backend, op, Status(err)).Inc()
	m.OpDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveExec(err error) {
	if m == nil {
		return
	}
	m.ExecTotal.WithLabelValues(Status(err)).Inc()
}

func (m *Metrics) SetBackends(n int) {
	if m == nil {
		return
	}
	m.Backends.Set(float64(n))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.RemoteSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.RemoteSessions.Dec()
}

// Message counts one remote message; direction is "in" or "out".
func (m *Metrics) Message(direction string) {
	if m == nil {
		return
	}
	m.RemoteMessages.WithLabelValues(direction).Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
