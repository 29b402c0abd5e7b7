package schedule

import (
	"math"
	"slices"
	"time"

	"github.com/prudhvinik1/episync/internal/models"
)

const day = 24 * time.Hour

// OverdueEntry is one vaccine a child should already have received.
type OverdueEntry struct {
	VaccineID   string      `json:"vaccine_id"`
	VaccineName string      `json:"vaccine_name"`
	DoseNumber  int         `json:"dose_number"`
	GroupID     string      `json:"group_id"`
	GroupName   string      `json:"group_name"`
	DueDate     models.Date `json:"due_date"`
	DaysOverdue int         `json:"days_overdue"`
}

// UpcomingGroup is the next schedule group that is not yet due and still has
// vaccines outstanding.
type UpcomingGroup struct {
	GroupID   string      `json:"group_id"`
	GroupName string      `json:"group_name"`
	DueDate   models.Date `json:"due_date"`
	Vaccines  []Vaccine   `json:"vaccines"`
}

// Engine evaluates children against a catalog. It keeps no state between
// calls, so results always reflect the records passed in.
type Engine struct {
	catalog *Catalog
	now     func() time.Time
	loc     *time.Location
}

type EngineOption func(*Engine)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLocation sets the zone in which calendar days start.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func NewEngine(catalog *Catalog, opts ...EngineOption) *Engine {
	e := &Engine{catalog: catalog, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Today is the current calendar day in the engine's location.
func (e *Engine) Today() models.Date {
	return models.DateOf(e.now(), e.loc)
}

// Progress returns the completion percentage of the schedule for child.
// Every completed, administered record counts, including repeats of the same
// vaccine, so duplicate records can push the result above 100.
func (e *Engine) Progress(child models.Child, records []models.VaccinationRecord) int {
	total := e.catalog.TotalVaccineCount()
	if total == 0 {
		return 0
	}

	completed := 0
	for _, r := range records {
		if r.ChildID == child.ID && r.Counts() {
			completed++
		}
	}

	return int(math.Round(100 * float64(completed) / float64(total)))
}

// Overdue lists every vaccine whose group due date has passed and that has
// no completed record, most overdue first.
func (e *Engine) Overdue(child models.Child, records []models.VaccinationRecord) []OverdueEntry {
	if child.DateOfBirth.IsZero() {
		return nil
	}

	now := e.now()
	done := completedVaccines(child, records)

	var out []OverdueEntry
	for _, g := range e.catalog.groups {
		dueDate := child.DateOfBirth.AddWeeks(g.MinEligibleWeeks)
		due := dueDate.Midnight(e.loc)
		if !due.Before(now) {
			continue
		}
		days := int(now.Sub(due) / day)
		for _, v := range g.Vaccines {
			if done[v.ID] {
				continue
			}
			out = append(out, OverdueEntry{
				VaccineID:   v.ID,
				VaccineName: v.Name,
				DoseNumber:  v.DoseNumber,
				GroupID:     g.ID,
				GroupName:   g.Name,
				DueDate:     dueDate,
				DaysOverdue: days,
			})
		}
	}

	slices.SortStableFunc(out, func(a, b OverdueEntry) int {
		return b.DaysOverdue - a.DaysOverdue
	})
	return out
}

// IsDefaulter reports whether child has at least one overdue vaccine.
func (e *Engine) IsDefaulter(child models.Child, records []models.VaccinationRecord) bool {
	return len(e.Overdue(child, records)) > 0
}

// NextDue returns the earliest group that is not yet due and still has
// vaccines without a completed record.
func (e *Engine) NextDue(child models.Child, records []models.VaccinationRecord) (UpcomingGroup, bool) {
	if child.DateOfBirth.IsZero() {
		return UpcomingGroup{}, false
	}

	now := e.now()
	done := completedVaccines(child, records)

	for _, g := range e.catalog.groups {
		dueDate := child.DateOfBirth.AddWeeks(g.MinEligibleWeeks)
		if dueDate.Midnight(e.loc).Before(now) {
			continue
		}
		var pending []Vaccine
		for _, v := range g.Vaccines {
			if !done[v.ID] {
				pending = append(pending, v)
			}
		}
		if len(pending) > 0 {
			return UpcomingGroup{GroupID: g.ID, GroupName: g.Name, DueDate: dueDate, Vaccines: pending}, true
		}
	}
	return UpcomingGroup{}, false
}

// Validate checks an administration date using the engine's notion of today.
func (e *Engine) Validate(adminDate, birthDate models.Date, minEligibleWeeks int) error {
	return Validate(adminDate, birthDate, minEligibleWeeks, e.Today())
}

func completedVaccines(child models.Child, records []models.VaccinationRecord) map[string]bool {
	done := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ChildID == child.ID && r.Status == models.RecordCompleted {
			done[r.VaccineID] = true
		}
	}
	return done
}
