package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "storefront-analytics/services/analytics-api/internal/http/docs"
	"storefront-analytics/shared/pkg/metrics"
)

type Handlers struct {
	Health  http.HandlerFunc
	Bundle  http.Handler
	Export  http.Handler
	Refresh http.Handler
}

func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware("analytics-api"))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Use(RequireTenant)
		r.With(Require(PermRead)).Get("/bundle", h.Bundle.ServeHTTP)
		r.With(Require(PermExport)).Get("/export", h.Export.ServeHTTP)
		r.With(Require(PermRefresh)).Post("/refresh", h.Refresh.ServeHTTP)
	})
	return r
}
