package handlers

import (
	"log/slog"
	"net/http"

	"github.com/prudhvinik1/episync/internal/schedule"
	"github.com/prudhvinik1/episync/internal/services"
)

// ReportHandler serves the schedule and the facility reports.
type ReportHandler struct {
	catalog      *schedule.Catalog
	children     *services.ChildService
	vaccinations *services.VaccinationService
	logger       *slog.Logger
}

func NewReportHandler(catalog *schedule.Catalog, children *services.ChildService, vaccinations *services.VaccinationService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{catalog: catalog, children: children, vaccinations: vaccinations, logger: logger}
}

type ScheduleResponse struct {
	Groups     []schedule.VaccineGroup `json:"groups"`
	Facilities []string                `json:"facilities"`
	Total      int                     `json:"total_vaccines"`
}

// Schedule returns the vaccine catalog.
// GET /api/schedule
func (h *ReportHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ScheduleResponse{
		Groups:     h.catalog.AllGroups(),
		Facilities: h.catalog.Facilities(),
		Total:      h.catalog.TotalVaccineCount(),
	})
}

// Defaulters lists children with overdue vaccines.
// GET /api/defaulters
func (h *ReportHandler) Defaulters(w http.ResponseWriter, r *http.Request) {
	defaulters, err := h.children.Defaulters(r.Context(), facilityParam(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, defaulters)
}

// Stats returns the facility dashboard figures.
// GET /api/stats
func (h *ReportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.children.Stats(r.Context(), facilityParam(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Coverage returns per-vaccine coverage across all children.
// GET /api/coverage
func (h *ReportHandler) Coverage(w http.ResponseWriter, r *http.Request) {
	coverage, err := h.children.Coverage(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, coverage)
}

// Vaccinators lists the vaccinator names known at the facility.
// GET /api/vaccinators
func (h *ReportHandler) Vaccinators(w http.ResponseWriter, r *http.Request) {
	names, err := h.vaccinations.Vaccinators(r.Context(), facilityParam(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, names)
}
