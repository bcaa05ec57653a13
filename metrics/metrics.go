// Package metrics exposes hub counters through a private Prometheus registry.
// All methods are safe on a nil *Metrics, which disables collection.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricehub"

// Line kinds.
const (
	KindBase      = "base"
	KindSynthetic = "synthetic"
)

type Metrics struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	skippedTicks    prometheus.Counter
	lines           *prometheus.CounterVec
	bytesSent       prometheus.Counter
	blockedWrites   prometheus.Counter
	subscribers     prometheus.Gauge
	disconnects     *prometheus.CounterVec
	formulaWarnings prometheus.Counter
	synthetics      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Broadcast loop iterations that read the price table.",
		}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_skipped_total",
			Help: "Broadcast loop iterations skipped because the price table was unavailable.",
		}),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "lines_total",
			Help: "Price lines emitted, by instrument kind.",
		}, []string{"kind"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sent_bytes_total",
			Help: "Bytes written to subscribers.",
		}),
		blockedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "blocked_writes_total",
			Help: "Subscriber writes that timed out without sending anything.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "subscribers",
			Help: "Currently registered subscribers.",
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "disconnects_total",
			Help: "Subscribers removed from the registry, by reason.",
		}, []string{"reason"}),
		formulaWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "formula_warnings_total",
			Help: "Diagnostics produced while loading formulas.",
		}),
		synthetics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "synthetic_instruments",
			Help: "Configured synthetic instruments.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.skippedTicks, m.lines, m.bytesSent, m.blockedWrites,
		m.subscribers, m.disconnects, m.formulaWarnings, m.synthetics,
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IncTick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) IncSkippedTick() {
	if m != nil {
		m.skippedTicks.Inc()
	}
}

func (m *Metrics) AddLines(kind string, n int) {
	if m != nil && n > 0 {
		m.lines.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) AddBytesSent(n int) {
	if m != nil && n > 0 {
		m.bytesSent.Add(float64(n))
	}
}

func (m *Metrics) IncBlockedWrite() {
	if m != nil {
		m.blockedWrites.Inc()
	}
}

func (m *Metrics) SetSubscribers(n int) {
	if m != nil {
		m.subscribers.Set(float64(n))
	}
}

func (m *Metrics) IncDisconnect(reason string) {
	if m != nil {
		m.disconnects.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) AddFormulaWarnings(n int) {
	if m != nil && n > 0 {
		m.formulaWarnings.Add(float64(n))
	}
}

func (m *Metrics) SetSynthetics(n int) {
	if m != nil {
		m.synthetics.Set(float64(n))
	}
}
