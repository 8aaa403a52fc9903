// Package metrics exposes Prometheus instrumentation of the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all engine metrics.
type Metrics struct {
	TicksTotal     prometheus.Counter
	TicksDropped   prometheus.Counter
	TickDuration   prometheus.Histogram
	QuotesTotal    *prometheus.CounterVec // labels: result=ok|error
	QuoteDuration  prometheus.Histogram
	ActionsTotal   *prometheus.CounterVec // labels: kind
	EventsTotal    *prometheus.CounterVec // labels: kind
	StoreErrors    prometheus.Counter
	Sessions       *prometheus.GaugeVec // labels: status
	StreamClients  prometheus.Gauge
	StreamDropped  prometheus.Counter
	RealizedProfit prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the metrics on a dedicated registry together with the Go and process
// collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nsplit_ticks_total",
			Help: "Evaluation passes started",
		}),
		TicksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nsplit_ticks_dropped_total",
			Help: "Ticks skipped because the previous pass was still running",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nsplit_tick_duration_seconds",
			Help:    "Duration of one evaluation pass over all running sessions",
			Buckets: prometheus.DefBuckets,
		}),
		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nsplit_quotes_total",
			Help: "Price feed requests by result",
		}, []string{"result"}),
		QuoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nsplit_quote_duration_seconds",
			Help:    "Price feed request latency",
			Buckets: prometheus.DefBuckets,
		}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nsplit_actions_total",
			Help: "Trigger actions applied by kind",
		}, []string{"kind"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nsplit_events_total",
			Help: "Session events recorded by kind",
		}, []string{"kind"}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nsplit_store_errors_total",
			Help: "Failed writes to the session store",
		}),
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nsplit_sessions",
			Help: "Sessions by status",
		}, []string{"status"}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nsplit_stream_clients",
			Help: "Connected event stream clients",
		}),
		StreamDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nsplit_stream_dropped_total",
			Help: "Events dropped for slow stream subscribers",
		}),
		RealizedProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nsplit_realized_profit",
			Help: "Realized profit summed over all sessions",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TicksTotal,
		m.TicksDropped,
		m.TickDuration,
		m.QuotesTotal,
		m.QuoteDuration,
		m.ActionsTotal,
		m.EventsTotal,
		m.StoreErrors,
		m.Sessions,
		m.StreamClients,
		m.StreamDropped,
		m.RealizedProfit,
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
