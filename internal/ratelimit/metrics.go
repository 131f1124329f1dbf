package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected    prometheus.Counter
	StoreErrors prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Rejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "freewalk_report_rate_limited_total",
			Help: "Report submissions rejected by the per-user rate limit",
		}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "freewalk_rate_limit_store_errors_total",
			Help: "Rate limit checks that failed and let the request through",
		}),
	}
}
