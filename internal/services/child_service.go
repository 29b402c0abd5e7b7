package services

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/repositories"
	"github.com/prudhvinik1/episync/internal/schedule"
)

type ChildSummary struct {
	Child    models.Child               `json:"child"`
	Records  []models.VaccinationRecord `json:"records"`
	Progress int                        `json:"progress"`
	Overdue  []schedule.OverdueEntry    `json:"overdue"`
	NextDue  *schedule.UpcomingGroup    `json:"next_due,omitempty"`
}

type Defaulter struct {
	Child          models.Child            `json:"child"`
	Overdue        []schedule.OverdueEntry `json:"overdue"`
	MaxDaysOverdue int                     `json:"max_days_overdue"`
}

type FacilityStats struct {
	TotalChildren         int `json:"total_children"`
	VaccinationsThisMonth int `json:"vaccinations_this_month"`
	CompletionRate        int `json:"completion_rate"`
	Defaulters            int `json:"defaulters"`
}

type VaccineCoverage struct {
	VaccineID    string `json:"vaccine_id"`
	VaccineName  string `json:"vaccine_name"`
	GroupID      string `json:"group_id"`
	Administered int    `json:"administered"`
	Percent      int    `json:"percent"`
}

type ChildService struct {
	store  *repositories.Store
	engine *schedule.Engine
	options
}

func NewChildService(store *repositories.Store, engine *schedule.Engine, opts ...Option) *ChildService {
	return &ChildService{
		store:   store,
		engine:  engine,
		options: newOptions(opts),
	}
}

func (s *ChildService) Register(ctx context.Context, in ChildInput, registeredBy string) (*models.Child, error) {
	in.Normalize()
	if err := in.Validate(s.engine.Catalog(), s.engine.Today()); err != nil {
		return nil, err
	}

	child := models.Child{
		ID:           uuid.New().String(),
		Status:       models.ChildActive,
		RegisteredBy: registeredBy,
		CreatedAt:    s.clock().UTC(),
	}
	apply(&child, in)

	var saved models.Child
	err := s.store.Exclusive(ctx, func(ctx context.Context) error {
		var err error
		saved, err = s.store.Children.Upsert(ctx, child)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register child: %w", err)
	}

	s.logger.Info("child registered", "child_id", saved.ID, "facility", saved.Facility)
	return &saved, nil
}

func (s *ChildService) Get(ctx context.Context, id string) (*models.Child, error) {
	child, err := s.store.Children.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &child, nil
}

// List returns the children registered at facility, or every child when
// facility is empty. A non-empty query keeps only children whose name or MC
// number contains it, case-insensitively.
func (s *ChildService) List(ctx context.Context, facility, query string) ([]models.Child, error) {
	children, err := s.store.Children.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))

	out := make([]models.Child, 0, len(children))
	for _, c := range children {
		if facility != "" && c.Facility != facility {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(c.FullName), query) &&
			!strings.Contains(strings.ToLower(c.MCNumber), query) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Update replaces the editable fields of a child. Identity, status and
// registration metadata are kept.
func (s *ChildService) Update(ctx context.Context, id string, in ChildInput) (*models.Child, error) {
	in.Normalize()
	if err := in.Validate(s.engine.Catalog(), s.engine.Today()); err != nil {
		return nil, err
	}

	var saved models.Child
	err := s.store.Exclusive(ctx, func(ctx context.Context) error {
		child, err := s.store.Children.GetByID(ctx, id)
		if err != nil {
			return err
		}

		records, err := s.store.RecordsForChild(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range records {
			if !r.DateAdministered.IsZero() && r.DateAdministered.Before(in.DateOfBirth) {
				return fieldErr("date_of_birth", fmt.Sprintf("is after the recorded %s dose of %s", r.VaccineID, r.DateAdministered))
			}
		}

		apply(&child, in)
		saved, err = s.store.Children.Upsert(ctx, child)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Delete removes a child and every vaccination record of the child. A reason
// is required and only logged.
func (s *ChildService) Delete(ctx context.Context, id, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fieldErr("reason", "is required")
	}

	err := s.store.Exclusive(ctx, func(ctx context.Context) error {
		return s.store.DeleteChild(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("child deleted", "child_id", id, "reason", reason)
	return nil
}

func (s *ChildService) Summary(ctx context.Context, id string) (*ChildSummary, error) {
	child, err := s.store.Children.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := s.store.RecordsForChild(ctx, id)
	if err != nil {
		return nil, err
	}

	summary := &ChildSummary{
		Child:    child,
		Records:  records,
		Progress: s.engine.Progress(child, records),
		Overdue:  s.engine.Overdue(child, records),
	}
	if next, ok := s.engine.NextDue(child, records); ok {
		summary.NextDue = &next
	}
	return summary, nil
}

// Defaulters lists the children of facility with at least one overdue
// vaccine, most overdue first.
func (s *ChildService) Defaulters(ctx context.Context, facility string) ([]Defaulter, error) {
	children, byChild, err := s.snapshot(ctx, facility)
	if err != nil {
		return nil, err
	}

	out := make([]Defaulter, 0)
	for _, c := range children {
		overdue := s.engine.Overdue(c, byChild[c.ID])
		if len(overdue) == 0 {
			continue
		}
		out = append(out, Defaulter{
			Child:          c,
			Overdue:        overdue,
			MaxDaysOverdue: overdue[0].DaysOverdue,
		})
	}
	slices.SortStableFunc(out, func(a, b Defaulter) int {
		return b.MaxDaysOverdue - a.MaxDaysOverdue
	})
	return out, nil
}

func (s *ChildService) Stats(ctx context.Context, facility string) (*FacilityStats, error) {
	children, byChild, err := s.snapshot(ctx, facility)
	if err != nil {
		return nil, err
	}

	today := s.engine.Today()
	stats := &FacilityStats{TotalChildren: len(children)}
	progressSum := 0
	for _, c := range children {
		records := byChild[c.ID]
		progressSum += s.engine.Progress(c, records)
		if s.engine.IsDefaulter(c, records) {
			stats.Defaulters++
		}
		for _, r := range records {
			d := r.DateAdministered
			if r.Counts() && d.Year() == today.Year() && d.Month() == today.Month() {
				stats.VaccinationsThisMonth++
			}
		}
	}
	if len(children) > 0 {
		stats.CompletionRate = int(math.Round(float64(progressSum) / float64(len(children))))
	}
	return stats, nil
}

// Coverage reports, for every catalog vaccine, how many completed records
// exist and what share of all registered children that is.
func (s *ChildService) Coverage(ctx context.Context) ([]VaccineCoverage, error) {
	children, err := s.store.Children.List(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.store.Records.List(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, r := range records {
		if r.Counts() {
			counts[r.VaccineID]++
		}
	}

	out := make([]VaccineCoverage, 0, s.engine.Catalog().TotalVaccineCount())
	for _, g := range s.engine.Catalog().AllGroups() {
		for _, v := range g.Vaccines {
			cov := VaccineCoverage{
				VaccineID:    v.ID,
				VaccineName:  v.Name,
				GroupID:      g.ID,
				Administered: counts[v.ID],
			}
			if len(children) > 0 {
				cov.Percent = int(math.Round(100 * float64(cov.Administered) / float64(len(children))))
			}
			out = append(out, cov)
		}
	}
	return out, nil
}

func (s *ChildService) snapshot(ctx context.Context, facility string) ([]models.Child, map[string][]models.VaccinationRecord, error) {
	children, err := s.List(ctx, facility, "")
	if err != nil {
		return nil, nil, err
	}
	records, err := s.store.Records.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	byChild := make(map[string][]models.VaccinationRecord, len(children))
	for _, r := range records {
		byChild[r.ChildID] = append(byChild[r.ChildID], r)
	}
	return children, byChild, nil
}

func apply(child *models.Child, in ChildInput) {
	child.FullName = in.FullName
	child.MotherName = in.MotherName
	child.Address = in.Address
	child.ParentContact = in.ParentContact
	child.MCNumber = in.MCNumber
	child.DateOfBirth = in.DateOfBirth
	child.Gender = in.Gender
	child.Facility = in.Facility
	child.Location = in.Location
}
