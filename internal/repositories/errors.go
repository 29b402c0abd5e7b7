package repositories

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrLeaseHeld is returned by Store.AcquireLease while another owner
	// holds the lease.
	ErrLeaseHeld = errors.New("lease held by another owner")

	// ErrStoreUnavailable marks a failure of the underlying key-value store.
	// Match it with errors.Is; the concrete error is a *StoreError.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError wraps a backend failure with the operation and collection it
// happened on.
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s collection %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func storeErr(op, collection string, err error) error {
	return &StoreError{Op: op, Collection: collection, Err: err}
}
