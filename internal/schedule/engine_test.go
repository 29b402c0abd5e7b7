package schedule

import (
	"testing"
	"time"

	"github.com/prudhvinik1/episync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedEngine(now time.Time) *Engine {
	return NewEngine(Default(), WithClock(func() time.Time { return now }))
}

func completed(childID string, vaccineIDs ...string) []models.VaccinationRecord {
	var out []models.VaccinationRecord
	for _, id := range vaccineIDs {
		out = append(out, models.VaccinationRecord{
			ID:        childID + "-" + id,
			ChildID:   childID,
			VaccineID: id,
			Status:    models.RecordCompleted,
		})
	}
	return out
}

func allVaccineIDs() []string {
	var ids []string
	for _, g := range Default().AllGroups() {
		for _, v := range g.Vaccines {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

func TestEngine_Progress(t *testing.T) {
	e := fixedEngine(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	child := models.Child{ID: "c1", DateOfBirth: models.MustParseDate("2024-01-01")}

	t.Run("empty records", func(t *testing.T) {
		assert.Equal(t, 0, e.Progress(child, nil))
	})

	t.Run("every vaccine completed", func(t *testing.T) {
		assert.Equal(t, 100, e.Progress(child, completed("c1", allVaccineIDs()...)))
	})

	t.Run("rounds to nearest percent", func(t *testing.T) {
		// 3 of 24 = 12.5%
		assert.Equal(t, 13, e.Progress(child, completed("c1", "bcg", "hepb", "opv0")))
	})

	t.Run("ignores not administered and non completed", func(t *testing.T) {
		records := completed("c1", "bcg")
		records = append(records,
			models.VaccinationRecord{ChildID: "c1", VaccineID: "hepb", Status: models.RecordCompleted, NotAdministered: true},
			models.VaccinationRecord{ChildID: "c1", VaccineID: "opv0", Status: models.RecordMissed},
		)
		assert.Equal(t, 4, e.Progress(child, records))
	})

	t.Run("counts raw duplicates", func(t *testing.T) {
		records := completed("c1", "bcg", "bcg")
		assert.Equal(t, 8, e.Progress(child, records))
	})

	t.Run("duplicates can exceed 100", func(t *testing.T) {
		// 25 of 24 = 104.2%
		records := append(completed("c1", allVaccineIDs()...), completed("c1", "bcg")...)
		assert.Equal(t, 104, e.Progress(child, records))
	})

	t.Run("ignores other children", func(t *testing.T) {
		assert.Equal(t, 0, e.Progress(child, completed("c2", "bcg")))
	})
}

func TestEngine_Overdue(t *testing.T) {
	// 10 weeks and 2 days after birth: birth and 2months groups are due.
	now := time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)
	e := fixedEngine(now)
	child := models.Child{ID: "c1", DateOfBirth: models.MustParseDate("2024-01-01")}

	overdue := e.Overdue(child, completed("c1", "bcg", "penta1"))

	ids := make([]string, 0, len(overdue))
	for _, o := range overdue {
		ids = append(ids, o.VaccineID)
	}
	assert.Equal(t, []string{"hepb", "opv0", "opv1", "pneumo1", "rota1"}, ids)

	first := overdue[0]
	assert.Equal(t, "birth", first.GroupID)
	assert.Equal(t, "2024-01-01", first.DueDate.String())
	assert.Equal(t, 72, first.DaysOverdue)

	last := overdue[len(overdue)-1]
	assert.Equal(t, "2months", last.GroupID)
	assert.Equal(t, "2024-02-26", last.DueDate.String())
	assert.Equal(t, 16, last.DaysOverdue)

	assert.True(t, e.IsDefaulter(child, nil))
}

func TestEngine_Overdue_GroupDueToday(t *testing.T) {
	child := models.Child{ID: "c1", DateOfBirth: models.MustParseDate("2024-01-01")}
	// The 2 months group falls due at 8 weeks, on 2024-02-26.
	dueDay := time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC)

	t.Run("at midnight it is not yet overdue", func(t *testing.T) {
		overdue := fixedEngine(dueDay).Overdue(child, completed("c1", "bcg", "hepb", "opv0"))
		assert.Empty(t, overdue)

		next, ok := fixedEngine(dueDay).NextDue(child, nil)
		require.True(t, ok)
		assert.Equal(t, "2months", next.GroupID)
		assert.Equal(t, "2024-02-26", next.DueDate.String())
	})

	t.Run("later that day it is overdue by zero days", func(t *testing.T) {
		overdue := fixedEngine(dueDay.Add(10*time.Hour)).Overdue(child, completed("c1", "bcg", "hepb", "opv0"))
		require.NotEmpty(t, overdue)
		for _, o := range overdue {
			assert.Equal(t, "2months", o.GroupID)
			assert.Zero(t, o.DaysOverdue, o.VaccineID)
		}
	})
}

func TestEngine_Overdue_NeverIncludesFutureGroups(t *testing.T) {
	birth := models.MustParseDate("2024-01-01")
	child := models.Child{ID: "c1", DateOfBirth: birth}

	for days := 0; days < 600; days += 7 {
		now := birth.AddDays(days).Midnight(time.UTC).Add(6 * time.Hour)
		for _, o := range fixedEngine(now).Overdue(child, nil) {
			require.True(t, o.DueDate.Midnight(time.UTC).Before(now), "%s due %s listed at %s", o.VaccineID, o.DueDate, now)
		}
	}
}

func TestEngine_Overdue_SortedMostOverdueFirst(t *testing.T) {
	e := fixedEngine(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	child := models.Child{ID: "c1", DateOfBirth: models.MustParseDate("2024-01-01")}

	overdue := e.Overdue(child, nil)
	require.Len(t, overdue, 24)
	for i := 1; i < len(overdue); i++ {
		assert.GreaterOrEqual(t, overdue[i-1].DaysOverdue, overdue[i].DaysOverdue)
	}
}

func TestEngine_Overdue_CompleteChildIsNotDefaulter(t *testing.T) {
	e := fixedEngine(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	child := models.Child{ID: "c1", DateOfBirth: models.MustParseDate("2024-01-01")}

	assert.Empty(t, e.Overdue(child, completed("c1", allVaccineIDs()...)))
	assert.False(t, e.IsDefaulter(child, completed("c1", allVaccineIDs()...)))
}

func TestEngine_Overdue_RecomputedEachCall(t *testing.T) {
	e := fixedEngine(time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC))
	child := models.Child{ID: "c1", DateOfBirth: models.MustParseDate("2024-01-01")}

	before := e.Overdue(child, nil)
	after := e.Overdue(child, completed("c1", "bcg"))

	assert.Len(t, after, len(before)-1)
}

func TestEngine_NextDue(t *testing.T) {
	e := fixedEngine(time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC))
	child := models.Child{ID: "c1", DateOfBirth: models.MustParseDate("2024-01-01")}

	next, ok := e.NextDue(child, nil)
	require.True(t, ok)
	assert.Equal(t, "3months", next.GroupID)
	assert.Equal(t, "2024-03-25", next.DueDate.String())
	assert.Len(t, next.Vaccines, 4)
}

func TestEngine_TodayUsesLocation(t *testing.T) {
	now := time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)
	e := NewEngine(Default(),
		WithClock(func() time.Time { return now }),
		WithLocation(time.FixedZone("UTC+2", 2*60*60)),
	)

	assert.Equal(t, "2024-06-02", e.Today().String())
}
