package storage

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts fan-out and cache activity. A nil *Metrics is a no-op.
type Metrics struct {
	fanouts        prometheus.Counter
	branchFailures prometheus.Counter
	cacheLookups   *prometheus.CounterVec
}

// NewMetrics registers the storage collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fanouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "company_tasks_fanout_total",
			Help: "Task fan-outs issued against the document store.",
		}),
		branchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "company_tasks_fanout_branch_failures_total",
			Help: "Per-company task fetches that failed and contributed no tasks.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "company_tasks_response_cache_lookups_total",
			Help: "Response cache lookups by listing and result.",
		}, []string{"listing", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.fanouts, m.branchFailures, m.cacheLookups)
	}
	return m
}

func (m *Metrics) fanout() {
	if m == nil {
		return
	}
	m.fanouts.Inc()
}

func (m *Metrics) branchFailed() {
	if m == nil {
		return
	}
	m.branchFailures.Inc()
}

func (m *Metrics) cacheLookup(listing string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(listing, result).Inc()
}
