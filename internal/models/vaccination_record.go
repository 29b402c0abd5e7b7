package models

import "time"

type RecordStatus string

const (
	RecordCompleted RecordStatus = "completed"
	RecordMissed    RecordStatus = "missed"
	RecordScheduled RecordStatus = "scheduled"
)

type VaccinationRecord struct {
	ID                    string       `json:"id"`
	ChildID               string       `json:"child_id"`
	VaccineID             string       `json:"vaccine_id"`
	DoseNumber            int          `json:"dose_number"`
	DateAdministered      Date         `json:"date_administered"`
	AdministeredBy        string       `json:"administered_by"`
	Facility              string       `json:"facility"`
	BatchNumber           string       `json:"batch_number,omitempty"`
	Notes                 string       `json:"notes,omitempty"`
	Status                RecordStatus `json:"status"`
	NotAdministered       bool         `json:"not_administered"`
	ReasonNotAdministered string       `json:"reason_not_administered,omitempty"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// Counts reports whether the record contributes to vaccination progress.
func (r VaccinationRecord) Counts() bool {
	return r.Status == RecordCompleted && !r.NotAdministered
}

func (r VaccinationRecord) GetID() string { return r.ID }

func (r VaccinationRecord) GetUpdatedAt() time.Time { return r.UpdatedAt }

func (r VaccinationRecord) Stamped(at time.Time) VaccinationRecord {
	r.UpdatedAt = at
	return r
}
