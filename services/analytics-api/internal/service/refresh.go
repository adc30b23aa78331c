package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storefront-analytics/services/analytics-api/internal/metrics"
	"storefront-analytics/services/analytics-api/internal/window"
	"storefront-analytics/shared/pkg/models"
)

type RefreshStore interface {
	Request(ctx context.Context, evt models.Event[models.RebuildRequestedPayload]) error
}

type RefreshService struct {
	Store RefreshStore
	Now   func() time.Time
}

type RefreshRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Offset int    `json:"tz_offset_minutes"`
}

type RefreshAccepted struct {
	RequestID string    `json:"request_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// Request queues a rollup rebuild for the local dates From..To.
func (s *RefreshService) Request(ctx context.Context, tenantID string, in RefreshRequest) (RefreshAccepted, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	w, err := window.Resolve(window.Params{From: in.From, To: in.To, Offset: in.Offset}, now)
	if err != nil {
		return RefreshAccepted{}, err
	}

	requestID := uuid.NewString()
	evt := models.NewEvent(models.TypeRebuildRequested, tenantID, "", models.RebuildRequestedPayload{
		RequestID: requestID,
		From:      w.Start,
		To:        w.End,
	})
	if err := s.Store.Request(ctx, evt); err != nil {
		return RefreshAccepted{}, err
	}
	metrics.RefreshRequestsTotal.Inc()
	return RefreshAccepted{RequestID: requestID, Start: w.Start, End: w.End}, nil
}
