package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_projector_events_total",
		Help: "Events handled by the projector, by type and result",
	}, []string{"type", "result"})
	CacheBumpErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analytics_projector_cache_bump_errors_total",
		Help: "Failed tenant cache version bumps",
	})
)

func init() {
	prometheus.MustRegister(EventsTotal, CacheBumpErrorsTotal)
}
