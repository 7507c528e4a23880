// Package handler exposes the third-party registry lookup routes.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"casegate/internal/registry/aggregate"
	derrors "casegate/pkg/domain-errors"
	"casegate/pkg/platform/httputil"
)

// Handler serves the /api/registry surface.
type Handler struct {
	service *aggregate.Service
	logger  *slog.Logger
}

func New(service *aggregate.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the registry routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/registry", func(r chi.Router) {
		r.Get("/fca/search", h.searchFirms)
		r.Get("/fca/firms/{frn}", h.firmView)
		r.Get("/fca/individuals/{irn}", h.individual)
		r.Get("/companies/search", h.searchCompanies)
		r.Get("/companies/{companyNumber}", h.companyView)
	})
}

func (h *Handler) searchFirms(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "q is required"))
		return
	}
	body, err := h.service.SearchFirms(r.Context(), query,
		r.URL.Query().Get("type"), intParam(r, "per_page"))
	if err != nil {
		h.fail(w, r, "firm search failed", err)
		return
	}
	writeRaw(w, body)
}

func (h *Handler) firmView(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.FirmView(r.Context(), chi.URLParam(r, "frn"))
	if err != nil {
		h.fail(w, r, "firm view failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) individual(w http.ResponseWriter, r *http.Request) {
	body, err := h.service.Individual(r.Context(), chi.URLParam(r, "irn"))
	if err != nil {
		h.fail(w, r, "individual lookup failed", err)
		return
	}
	writeRaw(w, body)
}

func (h *Handler) searchCompanies(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "q is required"))
		return
	}
	body, err := h.service.SearchCompanies(r.Context(), query, intParam(r, "items_per_page"))
	if err != nil {
		h.fail(w, r, "company search failed", err)
		return
	}
	writeRaw(w, body)
}

func (h *Handler) companyView(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.CompanyView(r.Context(), chi.URLParam(r, "companyNumber"))
	if err != nil {
		h.fail(w, r, "company view failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, "error", err)
	httputil.WriteError(w, err)
}

func intParam(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
