package schedule

import (
	"errors"
	"fmt"

	"github.com/prudhvinik1/episync/internal/models"
)

var (
	ErrBeforeBirth = errors.New("cannot record vaccine before birth date")
	ErrTooYoung    = errors.New("child is too young for this vaccine")
	ErrFutureDate  = errors.New("cannot record future dates")
)

// ValidationError reports why an administration date was rejected. Kind is
// one of ErrBeforeBirth, ErrTooYoung or ErrFutureDate.
type ValidationError struct {
	Kind          error
	RequiredWeeks int
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Kind, ErrTooYoung) {
		return fmt.Sprintf("child must be at least %d weeks old for this vaccine", e.RequiredWeeks)
	}
	return e.Kind.Error()
}

// Rule is a stable name for Kind, used in API responses and metrics.
func (e *ValidationError) Rule() string {
	switch {
	case errors.Is(e.Kind, ErrBeforeBirth):
		return "before_birth"
	case errors.Is(e.Kind, ErrTooYoung):
		return "too_young"
	case errors.Is(e.Kind, ErrFutureDate):
		return "future_date"
	}
	return "invalid_date"
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// Validate checks an administration date against the child's birth date and
// the group's minimum age. Rules are applied in order and the first failure
// wins. The minimum-age boundary is inclusive.
func Validate(adminDate, birthDate models.Date, minEligibleWeeks int, today models.Date) error {
	if adminDate.Before(birthDate) {
		return &ValidationError{Kind: ErrBeforeBirth}
	}
	if adminDate.Before(birthDate.AddWeeks(minEligibleWeeks)) {
		return &ValidationError{Kind: ErrTooYoung, RequiredWeeks: minEligibleWeeks}
	}
	if adminDate.After(today) {
		return &ValidationError{Kind: ErrFutureDate}
	}
	return nil
}
