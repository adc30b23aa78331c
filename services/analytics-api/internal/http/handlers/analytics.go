package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"storefront-analytics/services/analytics-api/internal/service"
)

type BundleBuilder interface {
	BuildJSON(ctx context.Context, tenantID string, q service.Query) ([]byte, bool, error)
}

type Exporter interface {
	Filename(q service.Query, f service.Format) (string, error)
	Export(ctx context.Context, tenantID string, q service.Query, f service.Format, out io.Writer) error
}

type Refresher interface {
	Request(ctx context.Context, tenantID string, in service.RefreshRequest) (service.RefreshAccepted, error)
}

type BundleHandler struct {
	Bundles BundleBuilder
	Log     zerolog.Logger
}

func (h *BundleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFrom(r.Context())
	q, err := service.ParseQuery(r.URL.Query())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	body, hit, err := h.Bundles.BuildJSON(r.Context(), tenantID, q)
	if err != nil {
		if StatusOf(err) >= http.StatusInternalServerError {
			h.Log.Error().Err(err).Str("tenant_id", tenantID).Msg("build bundle failed")
		}
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "private, max-age=0")
	if hit {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	_, _ = w.Write(body)
}

type ExportHandler struct {
	Exports Exporter
	Log     zerolog.Logger
}

func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFrom(r.Context())
	v := r.URL.Query()
	f, err := service.ParseFormat(v.Get("format"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	q, err := service.ParseQuery(v)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	name, err := h.Exports.Filename(q, f)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// buffered: a failing query must still answer with a JSON error
	var buf bytes.Buffer
	if err := h.Exports.Export(r.Context(), tenantID, q, f, &buf); err != nil {
		if StatusOf(err) >= http.StatusInternalServerError {
			h.Log.Error().Err(err).Str("tenant_id", tenantID).Str("format", string(f)).Msg("export failed")
		}
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

type RefreshHandler struct {
	Refresh Refresher
	Log     zerolog.Logger
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFrom(r.Context())

	var req service.RefreshRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && err != io.EOF {
			WriteError(w, http.StatusBadRequest, "bad json")
			return
		}
	}

	acc, err := h.Refresh.Request(r.Context(), tenantID, req)
	if err != nil {
		if StatusOf(err) >= http.StatusInternalServerError {
			h.Log.Error().Err(err).Str("tenant_id", tenantID).Msg("refresh request failed")
		}
		writeServiceError(w, err)
		return
	}
	h.Log.Info().Str("tenant_id", tenantID).Str("request_id", acc.RequestID).Msg("rebuild requested")
	WriteJSON(w, http.StatusAccepted, acc)
}
