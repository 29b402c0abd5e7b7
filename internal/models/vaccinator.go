package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

var vaccinatorNamespace = uuid.MustParse("6f1c1f3e-4b7a-4c65-9a8e-2d0f5b9c7a11")

// Vaccinator is an entry in a facility's directory of vaccinator names.
type Vaccinator struct {
	ID        string    `json:"id"`
	Facility  string    `json:"facility"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VaccinatorID derives a stable id so both replicas agree on the identity of
// the same facility/name pair.
func VaccinatorID(facility, name string) string {
	key := strings.ToLower(strings.TrimSpace(facility)) + "\x00" + strings.ToLower(strings.TrimSpace(name))
	return uuid.NewSHA1(vaccinatorNamespace, []byte(key)).String()
}

func (v Vaccinator) GetID() string { return v.ID }

func (v Vaccinator) GetUpdatedAt() time.Time { return v.UpdatedAt }

func (v Vaccinator) Stamped(at time.Time) Vaccinator {
	v.UpdatedAt = at
	return v
}
