package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/shopindex/internal/service"
	"github.com/utafrali/shopindex/pkg/httputil"
	"github.com/utafrali/shopindex/pkg/pagination"
)

// SearchHandler serves the index read path.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{service: svc, logger: logger}
}

// Search handles GET /api/_search/{resource}?query=&page=&size=
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	result, err := h.service.Search(r.Context(), chi.URLParam(r, "resource"), r.URL.Query().Get("query"), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// SearchProjection handles GET /api/_search/{resource}/projection?query=&fields=
func (h *SearchHandler) SearchProjection(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	var fields []string
	for _, f := range strings.Split(r.URL.Query().Get("fields"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	result, err := h.service.SearchProjection(r.Context(), chi.URLParam(r, "resource"), r.URL.Query().Get("query"), fields, params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
