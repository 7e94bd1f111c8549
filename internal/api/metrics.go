package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/rsslabel/internal/labeling"
)

// Metrics holds the labeling counters exported on /metrics.
type Metrics struct {
	registry    *prometheus.Registry
	labels      *prometheus.CounterVec
	skips       prometheus.Counter
	checkpoints prometheus.Counter
	rejected    prometheus.Counter
	cursor      prometheus.Gauge
	total       prometheus.Gauge
}

// NewMetrics registers the labeling collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		labels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsslabel_labels_total",
			Help: "Labels recorded, by label value.",
		}, []string{"label"}),
		skips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsslabel_skips_total",
			Help: "Articles skipped without a label.",
		}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsslabel_checkpoints_total",
			Help: "Checkpoint files written.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsslabel_rejected_labels_total",
			Help: "Label requests rejected as invalid.",
		}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsslabel_cursor",
			Help: "Index of the next article awaiting a label.",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsslabel_articles",
			Help: "Articles in the loaded batch.",
		}),
	}
	for _, l := range labeling.AllLabels {
		m.labels.WithLabelValues(string(l))
	}
	m.registry.MustRegister(
		m.labels, m.skips, m.checkpoints, m.rejected, m.cursor, m.total,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeLabel(l string, res labeling.Result) {
	if m == nil {
		return
	}
	m.labels.WithLabelValues(l).Inc()
	m.observeResult(res)
}

func (m *Metrics) observeSkip(res labeling.Result) {
	if m == nil {
		return
	}
	m.skips.Inc()
	m.observeResult(res)
}

func (m *Metrics) observeRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) observeResult(res labeling.Result) {
	m.cursor.Set(float64(res.Cursor))
	if res.Checkpoint != "" {
		m.checkpoints.Inc()
	}
}

func (m *Metrics) observeSession(s *labeling.Session) {
	if m == nil {
		return
	}
	m.cursor.Set(float64(s.Cursor()))
	m.total.Set(float64(s.Total()))
}
