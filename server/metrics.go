package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup kinds recorded in attackls_lookups_total
const (
	lookupCompletion   = "completion"
	lookupResolve      = "resolve"
	lookupHover        = "hover"
	lookupAPITechnique = "api_technique"
	lookupAPIList      = "api_list"
	lookupAPIComplete  = "api_complete"
)

// metrics lives on a private registry so several servers (tests) never collide.
// A nil *metrics records nothing.
type metrics struct {
	registry   *prometheus.Registry
	lookups    *prometheus.CounterVec
	candidates prometheus.Histogram
	sessions   *prometheus.GaugeVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attackls_lookups_total",
			Help: "Technique lookups by kind and whether anything was found.",
		}, []string{"kind", "outcome"}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attackls_completion_candidates",
			Help:    "Candidates returned per completion request.",
			Buckets: []float64{0, 1, 3, 10, 50, 200, 1000, 2000},
		}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "attackls_sessions",
			Help: "Open LSP sessions by transport.",
		}, []string{"transport"}),
	}
	m.registry.MustRegister(
		m.lookups,
		m.candidates,
		m.sessions,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *metrics) lookup(kind string, found bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if found {
		outcome = "hit"
	}
	m.lookups.WithLabelValues(kind, outcome).Inc()
}

func (m *metrics) completed(kind string, n int) {
	if m == nil {
		return
	}
	m.lookup(kind, n > 0)
	m.candidates.Observe(float64(n))
}

// session counts an open session until the returned func is called
func (m *metrics) session(transport string) (done func()) {
	if m == nil {
		return func() {}
	}
	g := m.sessions.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
