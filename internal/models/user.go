package models

import "time"

type UserRole string

const (
	RoleAdmin UserRole = "Admin"
	RolePHO   UserRole = "Public Health Officer"
	RoleNew   UserRole = "New User"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// User is a health worker account. PasswordHash is persisted in the users
// collection but never rendered by the API.
type User struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	FullName       string         `json:"full_name"`
	PhoneNumber    string         `json:"phone_number,omitempty"`
	Position       string         `json:"position,omitempty"`
	Facility       string         `json:"facility"`
	Role           UserRole       `json:"role"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	PasswordHash   string         `json:"password_hash,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (u User) GetID() string { return u.ID }

func (u User) GetUpdatedAt() time.Time { return u.UpdatedAt }

func (u User) Stamped(at time.Time) User {
	u.UpdatedAt = at
	return u
}

// Public strips credentials before the user leaves the service layer.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}
