package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"storefront-analytics/services/outbox-relay/internal/metrics"
	sharedmetrics "storefront-analytics/shared/pkg/metrics"
)

type Server struct {
	Pending func(ctx context.Context) (int, error)
	Log     zerolog.Logger
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(sharedmetrics.Middleware("outbox-relay"))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/outbox/pending", func(w http.ResponseWriter, r *http.Request) {
		n, err := s.Pending(r.Context())
		if err != nil {
			s.Log.Error().Err(err).Msg("count pending failed")
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		metrics.OutboxPending.Set(float64(n))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"pending": n})
	})

	return r
}
