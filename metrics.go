package ledgersaga

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's counters.
type Metrics struct {
	Settled         *prometheus.CounterVec
	Reverted        *prometheus.CounterVec
	GuardFailures   *prometheus.CounterVec
	Inconsistencies prometheus.Counter
	Swept           prometheus.Counter
}

// NewMetrics creates and registers the engine counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgersaga",
			Name:      "records_settled_total",
			Help:      "Records that reached SETTLED.",
		}, []string{"domain"}),
		Reverted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgersaga",
			Name:      "records_reverted_total",
			Help:      "Records that reached CANCELED through the revert protocol.",
		}, []string{"domain"}),
		GuardFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgersaga",
			Name:      "guard_failures_total",
			Help:      "Guarded writes that matched nothing.",
		}, []string{"domain"}),
		Inconsistencies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgersaga",
			Name:      "inconsistencies_total",
			Help:      "Reverts that finished without reaching CANCELED.",
		}),
		Swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgersaga",
			Name:      "reaper_swept_total",
			Help:      "Stuck records picked up by the reaper.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Settled, m.Reverted, m.GuardFailures, m.Inconsistencies, m.Swept)
	}
	return m
}
