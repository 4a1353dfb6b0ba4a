// internal/tracker/metrics.go
package tracker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the tracker's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	trims         prometheus.Counter
	trimmed       prometheus.Counter
	entries       prometheus.Gauge
}

// NewMetrics creates the tracker collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commit_tracker_cycles_total",
				Help: "Poll cycles by outcome.",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "commit_tracker_cycle_duration_seconds",
				Help:    "Duration of poll cycles in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		trims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commit_tracker_trims_total",
			Help: "Ledger trims performed.",
		}),
		trimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commit_tracker_trimmed_entries_total",
			Help: "Ledger entries removed by trims.",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commit_tracker_ledger_entries",
			Help: "Ledger entries after the last announcement.",
		}),
	}
	reg.MustRegister(m.cycles, m.cycleDuration, m.trims, m.trimmed, m.entries)
	return m
}

func (m *Metrics) observeCycle(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(string(outcome)).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) observeTrim(removed int64) {
	if m == nil {
		return
	}
	m.trims.Inc()
	m.trimmed.Add(float64(removed))
}

func (m *Metrics) setEntries(n int64) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}
