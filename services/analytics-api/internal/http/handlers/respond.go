package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"storefront-analytics/services/analytics-api/internal/service"
	"storefront-analytics/services/analytics-api/internal/window"
)

type ctxKey struct{}

// WithTenant stores the tenant id resolved by the tenant middleware.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

func TenantFrom(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}

type errorResp struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorResp{Error: msg})
}

// StatusOf maps service errors to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, window.ErrInvalidWindow),
		errors.Is(err, service.ErrInvalidQuery),
		errors.Is(err, service.ErrUnknownModule):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		WriteError(w, status, "internal error")
		return
	}
	WriteError(w, status, err.Error())
}
