package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for report resolution.
type Metrics struct {
	ReportsResolved *prometheus.CounterVec
	SubmitFailures  *prometheus.CounterVec
	ResolveDuration prometheus.Histogram
	LockConflicts   prometheus.Counter
	Retries         prometheus.Counter
	PointsAwarded   prometheus.Counter
}

// New creates a new Metrics instance with all report metrics registered.
func New() *Metrics {
	return &Metrics{
		ReportsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "freewalk_reports_resolved_total",
			Help: "Reports resolved, by outcome and category",
		}, []string{"outcome", "category"}),
		SubmitFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "freewalk_report_submit_failures_total",
			Help: "Failed report submissions, by error code",
		}, []string{"code"}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "freewalk_report_resolve_duration_seconds",
			Help:    "Duration of report resolution including lock wait and retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		LockConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "freewalk_report_lock_conflicts_total",
			Help: "Resolution attempts that lost a lock or serialization race",
		}),
		Retries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "freewalk_report_resolve_retries_total",
			Help: "Resolution attempts retried after a conflict",
		}),
		PointsAwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "freewalk_points_awarded_total",
			Help: "Reward points credited to users",
		}),
	}
}

// ObserveResolved records a committed resolution.
func (m *Metrics) ObserveResolved(outcome, category string, points int64, start time.Time) {
	m.ReportsResolved.WithLabelValues(outcome, category).Inc()
	m.PointsAwarded.Add(float64(points))
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

// IncrementConflict records a lost lock race that will be retried or surfaced.
func (m *Metrics) IncrementConflict(retrying bool) {
	m.LockConflicts.Inc()
	if retrying {
		m.Retries.Inc()
	}
}

// IncrementFailure records a submission that returned an error.
func (m *Metrics) IncrementFailure(code string) {
	m.SubmitFailures.WithLabelValues(code).Inc()
}
