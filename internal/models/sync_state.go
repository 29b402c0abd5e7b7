package models

import "time"

// SyncState is global to the local replica and only written by a
// successful sync.
type SyncState struct {
	LastSync time.Time `json:"last_sync"`
}

func (s SyncState) NeverSynced() bool {
	return s.LastSync.IsZero()
}
