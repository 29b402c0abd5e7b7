package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/repositories"
	"github.com/prudhvinik1/episync/internal/schedule"
)

// UnknownVaccinator is recorded when the worker could not name who gave the
// vaccine. It is never added to the facility directory.
const UnknownVaccinator = "Unknown"

// CorrectionReasons are the accepted reasons for re-recording a vaccine the
// child already has a record for.
var CorrectionReasons = []string{
	"Previous data entry error",
	"Incorrect date recorded",
	"Correction of provider details",
	"Update to vaccine batch information",
	"Incorrect vaccine series selected previously",
	"Other (see notes)",
}

var (
	ErrNoVaccinesSelected      = errors.New("select at least one vaccine")
	ErrUnknownVaccine          = errors.New("unknown vaccine")
	ErrVaccinatorRequired      = errors.New("name of the vaccinator is required")
	ErrInvalidCorrectionReason = errors.New("invalid correction reason")
)

type AdministrationRequest struct {
	ChildID          string      `json:"child_id"`
	VaccineIDs       []string    `json:"vaccine_ids"`
	DateAdministered models.Date `json:"date_administered"`
	AdministeredBy   string      `json:"administered_by"`
	UnknownProvider  bool        `json:"unknown_provider"`
	Facility         string      `json:"facility"`
	BatchNumber      string      `json:"batch_number"`
	Notes            string      `json:"notes"`
	CorrectionReason string      `json:"correction_reason"`
}

type AdministrationResult struct {
	Records    []models.VaccinationRecord `json:"records"`
	Correction bool                       `json:"correction"`
	Progress   int                        `json:"progress"`
}

type VaccinationService struct {
	store  *repositories.Store
	engine *schedule.Engine
	options
}

func NewVaccinationService(store *repositories.Store, engine *schedule.Engine, opts ...Option) *VaccinationService {
	return &VaccinationService{
		store:   store,
		engine:  engine,
		options: newOptions(opts),
	}
}

// Administer validates and commits one administration event. Every selected
// vaccine is checked against the minimum age of its own group before anything
// is written. Existing records of the child for the selected vaccines are
// replaced in the same rewrite that adds the new ones.
func (s *VaccinationService) Administer(ctx context.Context, req AdministrationRequest) (*AdministrationResult, error) {
	vaccineIDs := dedupe(req.VaccineIDs)
	if len(vaccineIDs) == 0 {
		return nil, ErrNoVaccinesSelected
	}

	catalog := s.engine.Catalog()
	groups := make(map[string]schedule.VaccineGroup, len(vaccineIDs))
	for _, id := range vaccineIDs {
		group, ok := catalog.GroupContaining(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVaccine, id)
		}
		groups[id] = group
	}

	vaccinator := strings.TrimSpace(req.AdministeredBy)
	if req.UnknownProvider {
		vaccinator = UnknownVaccinator
	}
	if vaccinator == "" {
		return nil, ErrVaccinatorRequired
	}

	var result *AdministrationResult
	err := s.store.Exclusive(ctx, func(ctx context.Context) error {
		child, err := s.store.Children.GetByID(ctx, req.ChildID)
		if err != nil {
			return fmt.Errorf("failed to get child %s: %w", req.ChildID, err)
		}

		for _, id := range vaccineIDs {
			if err := s.engine.Validate(req.DateAdministered, child.DateOfBirth, groups[id].MinEligibleWeeks); err != nil {
				s.rejected(err)
				return err
			}
		}

		existing, err := s.store.RecordsForChild(ctx, child.ID)
		if err != nil {
			return err
		}
		correction := slices.ContainsFunc(existing, func(r models.VaccinationRecord) bool {
			return slices.Contains(vaccineIDs, r.VaccineID)
		})

		notes := req.Notes
		if correction {
			reason := req.CorrectionReason
			if reason == "" {
				reason = CorrectionReasons[0]
			}
			if !slices.Contains(CorrectionReasons, reason) {
				return fmt.Errorf("%w: %q", ErrInvalidCorrectionReason, reason)
			}
			notes = strings.TrimSpace(fmt.Sprintf("[CORRECTION: %s] %s", reason, req.Notes))
		}

		facility := req.Facility
		if facility == "" {
			facility = child.Facility
		}

		records := make([]models.VaccinationRecord, 0, len(vaccineIDs))
		for _, id := range vaccineIDs {
			vaccine, _ := catalog.Vaccine(id)
			records = append(records, models.VaccinationRecord{
				ID:               uuid.New().String(),
				ChildID:          child.ID,
				VaccineID:        id,
				DoseNumber:       vaccine.DoseNumber,
				DateAdministered: req.DateAdministered,
				AdministeredBy:   vaccinator,
				Facility:         facility,
				BatchNumber:      req.BatchNumber,
				Notes:            notes,
				Status:           models.RecordCompleted,
			})
		}

		committed, err := s.store.Records.ReplaceWhere(ctx, func(r models.VaccinationRecord) bool {
			return r.ChildID == child.ID && slices.Contains(vaccineIDs, r.VaccineID)
		}, records)
		if err != nil {
			return fmt.Errorf("failed to commit vaccinations: %w", err)
		}

		if !req.UnknownProvider {
			if err := s.registerVaccinator(ctx, facility, vaccinator); err != nil {
				// The records are already committed.
				s.logger.Warn("failed to register vaccinator",
					"facility", facility,
					"error", err,
				)
			}
		}

		all, err := s.store.RecordsForChild(ctx, child.ID)
		if err != nil {
			return err
		}

		result = &AdministrationResult{
			Records:    committed,
			Correction: correction,
			Progress:   s.engine.Progress(child, all),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := "new"
	if result.Correction {
		kind = "correction"
	}
	s.metrics.AddCommitted(kind, len(result.Records))
	s.logger.Info("vaccinations committed",
		"child_id", req.ChildID,
		"count", len(result.Records),
		"correction", result.Correction,
	)
	return result, nil
}

// Vaccinators lists the vaccinator names known at facility, in the order
// they were first recorded.
func (s *VaccinationService) Vaccinators(ctx context.Context, facility string) ([]string, error) {
	entries, err := s.store.Vaccinators.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0)
	for _, v := range entries {
		if v.Facility == facility {
			names = append(names, v.Name)
		}
	}
	return names, nil
}

func (s *VaccinationService) registerVaccinator(ctx context.Context, facility, name string) error {
	id := models.VaccinatorID(facility, name)
	_, err := s.store.Vaccinators.GetByID(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	_, err = s.store.Vaccinators.Upsert(ctx, models.Vaccinator{ID: id, Facility: facility, Name: name})
	return err
}

func (s *VaccinationService) rejected(err error) {
	var verr *schedule.ValidationError
	if errors.As(err, &verr) {
		s.metrics.IncrementRejected(verr.Rule())
	}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
