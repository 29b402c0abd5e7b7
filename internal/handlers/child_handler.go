package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prudhvinik1/episync/internal/middleware"
	"github.com/prudhvinik1/episync/internal/services"
)

// ChildHandler handles child registration and vaccination commits.
type ChildHandler struct {
	children     *services.ChildService
	vaccinations *services.VaccinationService
	logger       *slog.Logger
}

func NewChildHandler(children *services.ChildService, vaccinations *services.VaccinationService, logger *slog.Logger) *ChildHandler {
	return &ChildHandler{children: children, vaccinations: vaccinations, logger: logger}
}

// List returns children of ?facility= (default: the worker's facility),
// filtered by ?q= on name or MC number. ?facility=all lists every facility.
// GET /api/children
func (h *ChildHandler) List(w http.ResponseWriter, r *http.Request) {
	children, err := h.children.List(r.Context(), facilityParam(r), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, children)
}

// Create registers a child.
// POST /api/children
func (h *ChildHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.ChildInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondBadRequest(w, err)
		return
	}

	registeredBy := ""
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		registeredBy = claims.UserID
		if in.Facility == "" {
			in.Facility = claims.Facility
		}
	}

	child, err := h.children.Register(r.Context(), in, registeredBy)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, child)
}

// Get returns the child's profile: records, progress, overdue vaccines and
// the next due group.
// GET /api/children/{id}
func (h *ChildHandler) Get(w http.ResponseWriter, r *http.Request) {
	summary, err := h.children.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Update replaces the child's registration details.
// PUT /api/children/{id}
func (h *ChildHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in services.ChildInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondBadRequest(w, err)
		return
	}

	child, err := h.children.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, child)
}

// Delete removes the child and its records. ?reason= is required.
// DELETE /api/children/{id}
func (h *ChildHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.children.Delete(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("reason")); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Administer records one administration event for the child.
// POST /api/children/{id}/vaccinations
func (h *ChildHandler) Administer(w http.ResponseWriter, r *http.Request) {
	var req services.AdministrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadRequest(w, err)
		return
	}
	req.ChildID = chi.URLParam(r, "id")
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil && req.Facility == "" {
		req.Facility = claims.Facility
	}

	result, err := h.vaccinations.Administer(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// facilityParam resolves ?facility=, defaulting to the worker's own facility.
// "all" clears the filter.
func facilityParam(r *http.Request) string {
	facility := r.URL.Query().Get("facility")
	if facility == "all" {
		return ""
	}
	if facility == "" {
		if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
			return claims.Facility
		}
	}
	return facility
}
