package schedule

import (
	"testing"

	"github.com/prudhvinik1/episync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = models.MustParseDate("2024-12-31")

func TestValidate_Scenario(t *testing.T) {
	birth := models.MustParseDate("2024-01-01")

	err := Validate(models.MustParseDate("2024-02-25"), birth, 8, today)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooYoung)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 8, verr.RequiredWeeks)
	assert.Equal(t, "child must be at least 8 weeks old for this vaccine", verr.Error())

	assert.NoError(t, Validate(models.MustParseDate("2024-02-26"), birth, 8, today))
}

func TestValidate_BeforeBirthWinsRegardlessOfWeeks(t *testing.T) {
	birth := models.MustParseDate("2024-05-10")
	adminDate := birth.AddDays(-1)

	for _, weeks := range []int{0, 1, 8, 39, 78} {
		err := Validate(adminDate, birth, weeks, today)
		assert.ErrorIs(t, err, ErrBeforeBirth, "weeks=%d", weeks)
	}
}

func TestValidate_MinimumAgeBoundaryIsInclusive(t *testing.T) {
	birth := models.MustParseDate("2024-01-15")

	for _, g := range Default().AllGroups() {
		w := g.MinEligibleWeeks
		if w > 0 {
			assert.ErrorIs(t, Validate(birth.AddWeeks(w).AddDays(-1), birth, w, today), ErrTooYoung, "group %s", g.ID)
		}
		if birth.AddWeeks(w).After(today) {
			continue
		}
		assert.NoError(t, Validate(birth.AddWeeks(w), birth, w, today), "group %s", g.ID)
	}
}

func TestValidate_FutureDate(t *testing.T) {
	birth := models.MustParseDate("2024-01-01")

	assert.NoError(t, Validate(today, birth, 0, today), "today itself is allowed")
	assert.ErrorIs(t, Validate(today.AddDays(1), birth, 0, today), ErrFutureDate)
}

func TestValidate_RuleOrder(t *testing.T) {
	birth := models.MustParseDate("2024-12-20")

	// Both too young and in the future: too young is checked first.
	err := Validate(models.MustParseDate("2025-01-02"), birth, 8, today)
	assert.ErrorIs(t, err, ErrTooYoung)
}

func TestValidationError_Rule(t *testing.T) {
	birth := models.MustParseDate("2024-01-01")
	today := models.MustParseDate("2024-06-01")

	tests := []struct {
		admin string
		rule  string
	}{
		{admin: "2023-12-31", rule: "before_birth"},
		{admin: "2024-01-10", rule: "too_young"},
		{admin: "2024-07-01", rule: "future_date"},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			err := Validate(models.MustParseDate(tt.admin), birth, 8, today)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.rule, verr.Rule())
		})
	}
}
