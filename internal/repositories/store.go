package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prudhvinik1/episync/internal/models"
)

// Collection names shared by both replicas.
const (
	ChildrenCollection    = "children"
	RecordsCollection     = "records"
	UsersCollection       = "users"
	VaccinatorsCollection = "vaccinators"
	LastSyncKey           = "lastSync"
)

// SyncLease guards a replica against concurrent syncs from any process.
// The TTL bounds how long a crashed syncer can block the next one.
const (
	SyncLease    = "sync"
	SyncLeaseTTL = 10 * time.Minute
)

// Store is one replica: the four entity collections plus the sync
// bookkeeping, all on top of a single KVStore.
//
// Collection mutations are read-modify-write cycles over a whole collection
// and do not lock. Callers that mutate a replica concurrently must run those
// cycles inside Exclusive.
type Store struct {
	kv    KVStore
	clock func() time.Time
	mu    sync.Mutex

	leaseMu sync.Mutex
	leases  map[string]time.Time

	Children    *Collection[models.Child]
	Records     *Collection[models.VaccinationRecord]
	Users       *Collection[models.User]
	Vaccinators *Collection[models.Vaccinator]
}

func NewStore(kv KVStore, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		kv:          kv,
		clock:       clock,
		Children:    NewCollection[models.Child](kv, ChildrenCollection, clock),
		Records:     NewCollection[models.VaccinationRecord](kv, RecordsCollection, clock),
		Users:       NewCollection[models.User](kv, UsersCollection, clock),
		Vaccinators: NewCollection[models.Vaccinator](kv, VaccinatorsCollection, clock),
	}
}

// Exclusive runs fn while holding the replica's write lock. It is not
// reentrant.
func (s *Store) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

// AcquireLease takes the named lease for ttl and returns the function that
// gives it back. It returns ErrLeaseHeld while another owner holds it. The
// lease lives in the backend when it implements Leaser, so it is shared by
// every process on that backend; otherwise it only spans this Store.
func (s *Store) AcquireLease(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	leaser, ok := s.kv.(Leaser)
	if !ok {
		return s.acquireLocalLease(name, ttl)
	}

	owner := uuid.New().String()
	acquired, err := leaser.AcquireLease(ctx, name, owner, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s lease: %w", name, err)
	}
	if !acquired {
		return nil, ErrLeaseHeld
	}
	return func(ctx context.Context) error {
		return leaser.ReleaseLease(ctx, name, owner)
	}, nil
}

func (s *Store) acquireLocalLease(name string, ttl time.Duration) (func(context.Context) error, error) {
	s.leaseMu.Lock()
	defer s.leaseMu.Unlock()

	now := s.clock()
	if expires, ok := s.leases[name]; ok && now.Before(expires) {
		return nil, ErrLeaseHeld
	}
	if s.leases == nil {
		s.leases = make(map[string]time.Time)
	}
	expires := now.Add(ttl)
	s.leases[name] = expires

	return func(context.Context) error {
		s.leaseMu.Lock()
		defer s.leaseMu.Unlock()
		if s.leases[name].Equal(expires) {
			delete(s.leases, name)
		}
		return nil
	}, nil
}

func (s *Store) RecordsForChild(ctx context.Context, childID string) ([]models.VaccinationRecord, error) {
	records, err := s.Records.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.VaccinationRecord, 0)
	for _, r := range records {
		if r.ChildID == childID {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeleteChild removes a child and all of its vaccination records. When the
// backend supports batches both collections are written in one step;
// otherwise records go first so a failure never leaves orphaned records.
func (s *Store) DeleteChild(ctx context.Context, childID string) error {
	children, err := s.Children.List(ctx)
	if err != nil {
		return err
	}
	keptChildren := make([]models.Child, 0, len(children))
	found := false
	for _, c := range children {
		if c.ID == childID {
			found = true
			continue
		}
		keptChildren = append(keptChildren, c)
	}
	if !found {
		return ErrNotFound
	}

	records, err := s.Records.List(ctx)
	if err != nil {
		return err
	}
	keptRecords := make([]models.VaccinationRecord, 0, len(records))
	for _, r := range records {
		if r.ChildID != childID {
			keptRecords = append(keptRecords, r)
		}
	}

	if batcher, ok := s.kv.(BatchPutter); ok {
		childrenPayload, err := s.Children.encode(keptChildren)
		if err != nil {
			return err
		}
		recordsPayload, err := s.Records.encode(keptRecords)
		if err != nil {
			return err
		}
		return batcher.PutBatch(ctx, map[string][]byte{
			RecordsCollection:  recordsPayload,
			ChildrenCollection: childrenPayload,
		})
	}

	if err := s.Records.ReplaceAll(ctx, keptRecords); err != nil {
		return fmt.Errorf("failed to delete records of child %s: %w", childID, err)
	}
	if err := s.Children.ReplaceAll(ctx, keptChildren); err != nil {
		return fmt.Errorf("failed to delete child %s: %w", childID, err)
	}
	return nil
}

// LastSync returns the replica's sync state. A replica that never synced
// reports a zero LastSync.
func (s *Store) LastSync(ctx context.Context) (models.SyncState, error) {
	payload, err := s.kv.Get(ctx, LastSyncKey)
	if err != nil {
		return models.SyncState{}, err
	}
	if len(payload) == 0 {
		return models.SyncState{}, nil
	}

	var at time.Time
	if err := json.Unmarshal(payload, &at); err != nil {
		return models.SyncState{}, fmt.Errorf("failed to unmarshal %s: %w", LastSyncKey, err)
	}
	return models.SyncState{LastSync: at}, nil
}

func (s *Store) SetLastSync(ctx context.Context, at time.Time) error {
	payload, err := json.Marshal(at.UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", LastSyncKey, err)
	}
	return s.kv.Put(ctx, LastSyncKey, payload)
}
