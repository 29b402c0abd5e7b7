package models

import "time"

// Entity is a replicated record. Stamped returns a copy with UpdatedAt set,
// which is the only input to conflict resolution during sync.
type Entity[T any] interface {
	GetID() string
	GetUpdatedAt() time.Time
	Stamped(at time.Time) T
}
