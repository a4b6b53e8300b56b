// Package metrics holds the Prometheus collectors of the refresh engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cycle outcomes.
const (
	OutcomeRefreshed     = "refreshed"
	OutcomeFresh         = "fresh"
	OutcomeUnconfigured  = "unconfigured"
	OutcomeUpstreamError = "upstream_unavailable"
	OutcomeStoreError    = "store_error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Cycles              *prometheus.CounterVec
	UpstreamRequests    *prometheus.CounterVec
	LegFailures         prometheus.Counter
	CacheDecodeFailures prometheus.Counter
	WakeupsScheduled    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitclock_cycles_total",
			Help: "Refresh cycles run, by outcome.",
		}, []string{"outcome"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitclock_upstream_requests_total",
			Help: "Upstream requests, by endpoint and result.",
		}, []string{"endpoint", "result"}),
		LegFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitclock_leg_failures_total",
			Help: "Per-leg estimate requests that failed and were skipped.",
		}),
		CacheDecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitclock_cache_decode_failures_total",
			Help: "Cached estimate sets that could not be decoded or scheduled.",
		}),
		WakeupsScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitclock_wakeups_scheduled_total",
			Help: "Wake-ups requested from the scheduler, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.Cycles, m.UpstreamRequests, m.LegFailures, m.CacheDecodeFailures, m.WakeupsScheduled)
	}
	return m
}

func (m *Metrics) Cycle(outcome string) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Upstream(endpoint, result string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, result).Inc()
}

func (m *Metrics) LegFailed() {
	if m == nil {
		return
	}
	m.LegFailures.Inc()
}

func (m *Metrics) CacheDecodeFailed() {
	if m == nil {
		return
	}
	m.CacheDecodeFailures.Inc()
}

func (m *Metrics) WakeupScheduled(reason string) {
	if m == nil {
		return
	}
	m.WakeupsScheduled.WithLabelValues(reason).Inc()
}
