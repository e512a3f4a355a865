package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/optisync/internal/optimistic"
)

const namespace = "optisync"

// Outcome labels of optisync_engine_requests_total.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeStale   = "stale"
)

// Reason labels of optisync_engine_rollbacks_total. They match the
// optimistic.Cause a rollback runs with.
const (
	reasonFailure = string(optimistic.CauseFailure)
	reasonExpired = string(optimistic.CauseExpired)
	reasonClose   = string(optimistic.CauseClose)
)

// metrics are per engine. They are registered only when a Registerer is
// configured, so tests may build any number of engines.
type metrics struct {
	mutations *prometheus.CounterVec
	rollbacks *prometheus.CounterVec
	stale     *prometheus.CounterVec
	cache     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, pending func() float64) *metrics {
	m := &metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Settled requests by operation kind and outcome.",
		}, []string{"kind", "outcome"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rollbacks_total",
			Help:      "Optimistic writes undone, by operation kind and reason.",
		}, []string{"kind", "reason"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "stale_responses_total",
			Help:      "Responses discarded because a newer request superseded them.",
		}, []string{"kind"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "List cache lookups by result.",
		}, []string{"result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Remote call latency by operation kind.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.mutations, m.rollbacks, m.stale, m.cache, m.latency,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "optimistic",
				Name:      "pending",
				Help:      "Optimistic writes awaiting confirmation.",
			}, pending),
		)
	}
	return m
}

func (m *metrics) settled(kind, outcome string) {
	m.mutations.WithLabelValues(kind, outcome).Inc()
}

func (m *metrics) rolledBack(kind, reason string) {
	m.rollbacks.WithLabelValues(kind, reason).Inc()
}

func (m *metrics) observe(kind string, d time.Duration) {
	m.latency.WithLabelValues(kind).Observe(d.Seconds())
}
