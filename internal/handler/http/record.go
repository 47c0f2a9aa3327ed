package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/service"
	"github.com/utafrali/shopindex/pkg/httputil"
	"github.com/utafrali/shopindex/pkg/pagination"
)

// RecordHandler serves the CRUD endpoints of one entity type.
type RecordHandler[T domain.Entity] struct {
	service *service.RecordService[T]
	logger  *slog.Logger
}

// NewRecordHandler creates a handler over svc.
func NewRecordHandler[T domain.Entity](svc *service.RecordService[T], logger *slog.Logger) *RecordHandler[T] {
	return &RecordHandler[T]{service: svc, logger: logger}
}

// Routes mounts list, get, create, update and delete on r.
func (h *RecordHandler[T]) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Group(func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
	})
	r.Delete("/{id}", h.Delete)
}

// List handles GET /api/{resource}?page=&size=
func (h *RecordHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	result, err := h.service.List(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// Get handles GET /api/{resource}/{id}
func (h *RecordHandler[T]) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: v})
}

// Create handles POST /api/{resource}
func (h *RecordHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	var v T
	if !h.decode(w, r, &v) {
		return
	}
	created, err := h.service.Create(r.Context(), &v)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: created})
}

// Update handles PUT /api/{resource}/{id}
func (h *RecordHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var v T
	if !h.decode(w, r, &v) {
		return
	}
	updated, err := h.service.Update(r.Context(), id, &v)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: updated})
}

// Delete handles DELETE /api/{resource}/{id}
func (h *RecordHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordHandler[T]) decode(w http.ResponseWriter, r *http.Request, dst *T) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		msg := "invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_JSON", Message: msg},
		})
		return false
	}
	return true
}
