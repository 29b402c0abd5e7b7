package models

import "time"

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type ChildStatus string

const (
	ChildActive    ChildStatus = "active"
	ChildCompleted ChildStatus = "completed"
	ChildInactive  ChildStatus = "inactive"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Child struct {
	ID            string      `json:"id"`
	FullName      string      `json:"full_name"`
	MotherName    string      `json:"mother_name"`
	Address       string      `json:"address,omitempty"`
	ParentContact string      `json:"parent_contact"`
	MCNumber      string      `json:"mc_number"`
	DateOfBirth   Date        `json:"date_of_birth"`
	Gender        Gender      `json:"gender"`
	Facility      string      `json:"facility"`
	Location      *Location   `json:"location,omitempty"`
	Status        ChildStatus `json:"status"`
	RegisteredBy  string      `json:"registered_by"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (c Child) GetID() string { return c.ID }

func (c Child) GetUpdatedAt() time.Time { return c.UpdatedAt }

func (c Child) Stamped(at time.Time) Child {
	c.UpdatedAt = at
	return c
}
