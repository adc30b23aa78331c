package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BundleCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_bundle_cache_total",
		Help: "Bundle cache lookups by result",
	}, []string{"result"})
	ModuleFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_module_failures_total",
		Help: "Optional bundle modules that degraded to empty",
	}, []string{"module"})
	ExportRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_export_rows_total",
		Help: "Rows written by the export endpoint",
	}, []string{"format"})
	RefreshRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analytics_refresh_requests_total",
		Help: "Accepted rollup rebuild requests",
	})
)

func init() {
	prometheus.MustRegister(BundleCacheTotal, ModuleFailuresTotal, ExportRowsTotal, RefreshRequestsTotal)
}
