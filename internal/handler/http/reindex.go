package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/reindex"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
	"github.com/utafrali/shopindex/pkg/httputil"
	"github.com/utafrali/shopindex/pkg/middleware"
)

// TriggerResponse is returned when a mass reindex is accepted.
type TriggerResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// ReindexHandler serves the mass reindex endpoints.
type ReindexHandler struct {
	reindexer *reindex.Reindexer
	logger    *slog.Logger
}

// NewReindexHandler creates a new reindex HTTP handler.
func NewReindexHandler(r *reindex.Reindexer, logger *slog.Logger) *ReindexHandler {
	return &ReindexHandler{reindexer: r, logger: logger}
}

// Trigger handles POST /api/mass/index?types=
//
// The job runs in the background; the response only acknowledges it.
func (h *ReindexHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var names []string
	if v := r.URL.Query().Get("types"); v != "" {
		names = strings.Split(v, ",")
	}
	types, err := domain.ParseEntityTypes(names)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}

	job, err := h.reindexer.ReindexAll(r.Context(), types...)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "mass reindex accepted",
		slog.String("job_id", job.ID().String()),
		slog.String("requested_by", middleware.UserIDFromContext(r.Context())),
	)
	w.Header().Set("Location", "/api/mass/index/"+job.ID().String())
	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{
		Data: TriggerResponse{JobID: job.ID().String(), Status: job.Status()},
	})
}

// Latest handles GET /api/mass/index
func (h *ReindexHandler) Latest(w http.ResponseWriter, r *http.Request) {
	job, ok := h.reindexer.Latest()
	if !ok {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "NOT_FOUND", Message: "no reindex job has run yet"},
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: job.Snapshot()})
}

// Get handles GET /api/mass/index/{id}
func (h *ReindexHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	job, ok := h.reindexer.Get(id)
	if !ok {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "NOT_FOUND", Message: "reindex job " + id.String() + " not found"},
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: job.Snapshot()})
}
