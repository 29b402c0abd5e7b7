package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/schedule"
)

var ErrInvalidInput = errors.New("invalid input")

// FieldError names the first field of a request that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidInput
}

func fieldErr(field, message string) error {
	return &FieldError{Field: field, Message: message}
}

var (
	mcNumberPattern = regexp.MustCompile(`^\d{3,4}-\d{3,4}$`)
	nonDigits       = regexp.MustCompile(`\D`)
)

// titleCase builds a fresh Caser per call; a Caser is stateful and must not
// be shared between goroutines.
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}

// ChildInput is the editable part of a child's registration.
type ChildInput struct {
	FullName      string           `json:"full_name"`
	MotherName    string           `json:"mother_name"`
	Address       string           `json:"address"`
	ParentContact string           `json:"parent_contact"`
	MCNumber      string           `json:"mc_number"`
	DateOfBirth   models.Date      `json:"date_of_birth"`
	Gender        models.Gender    `json:"gender"`
	Facility      string           `json:"facility"`
	Location      *models.Location `json:"location,omitempty"`
}

// Normalize trims every field, title-cases the names and strips the phone
// number down to digits.
func (in *ChildInput) Normalize() {
	in.FullName = titleCase(in.FullName)
	in.MotherName = titleCase(in.MotherName)
	in.Address = strings.TrimSpace(in.Address)
	in.ParentContact = nonDigits.ReplaceAllString(in.ParentContact, "")
	in.MCNumber = strings.TrimSpace(in.MCNumber)
	in.Gender = models.Gender(strings.ToLower(strings.TrimSpace(string(in.Gender))))
	in.Facility = strings.TrimSpace(in.Facility)
}

// Validate checks a normalized input. The first failing field wins.
func (in *ChildInput) Validate(catalog *schedule.Catalog, today models.Date) error {
	if in.FullName == "" {
		return fieldErr("full_name", "is required")
	}
	if len(strings.Fields(in.FullName)) < 2 {
		return fieldErr("full_name", "must contain at least a first name and a surname")
	}
	if len(strings.Fields(in.MotherName)) < 2 {
		return fieldErr("mother_name", "must contain at least two names")
	}
	if len(in.ParentContact) != 7 {
		return fieldErr("parent_contact", "must be exactly 7 digits")
	}
	if !mcNumberPattern.MatchString(in.MCNumber) {
		return fieldErr("mc_number", "must look like YYY-NNNN or YYYY-NNNN")
	}
	if in.DateOfBirth.IsZero() {
		return fieldErr("date_of_birth", "is required")
	}
	if in.DateOfBirth.After(today) {
		return fieldErr("date_of_birth", "cannot be in the future")
	}
	if in.Gender != models.GenderMale && in.Gender != models.GenderFemale {
		return fieldErr("gender", "must be male or female")
	}
	if !catalog.IsFacility(in.Facility) {
		return fieldErr("facility", fmt.Sprintf("unknown facility %q", in.Facility))
	}
	return nil
}
