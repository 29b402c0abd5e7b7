package repositories

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryKVStore keeps collections in process memory. Payloads are copied on
// the way in and out.
type MemoryKVStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	leases map[string]memoryLease
	hook   func(op, collection string) error
}

type memoryLease struct {
	owner     string
	expiresAt time.Time
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{
		data:   make(map[string][]byte),
		leases: make(map[string]memoryLease),
	}
}

func (s *MemoryKVStore) Get(ctx context.Context, collection string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "get", collection); err != nil {
		return nil, err
	}
	payload, ok := s.data[collection]
	if !ok {
		return nil, nil
	}
	return slices.Clone(payload), nil
}

func (s *MemoryKVStore) Put(ctx context.Context, collection string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, "put", collection); err != nil {
		return err
	}
	s.data[collection] = slices.Clone(payload)
	return nil
}

func (s *MemoryKVStore) PutBatch(ctx context.Context, payloads map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for collection := range payloads {
		if err := s.check(ctx, "put", collection); err != nil {
			return err
		}
	}
	for collection, payload := range payloads {
		s.data[collection] = slices.Clone(payload)
	}
	return nil
}

func (s *MemoryKVStore) Delete(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, "delete", collection); err != nil {
		return err
	}
	delete(s.data, collection)
	return nil
}

func (s *MemoryKVStore) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, "lease", name); err != nil {
		return false, err
	}
	now := time.Now()
	if held, ok := s.leases[name]; ok && held.owner != owner && now.Before(held.expiresAt) {
		return false, nil
	}
	s.leases[name] = memoryLease{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryKVStore) ReleaseLease(ctx context.Context, name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, "release", name); err != nil {
		return err
	}
	if held, ok := s.leases[name]; ok && held.owner == owner {
		delete(s.leases, name)
	}
	return nil
}

func (s *MemoryKVStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check(ctx, "ping", "")
}

// SetHook installs a function consulted before every operation ("get",
// "put", "delete", "lease", "release", "ping"). A non-nil return fails the
// operation, which is how tests simulate an unavailable store.
func (s *MemoryKVStore) SetHook(hook func(op, collection string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

func (s *MemoryKVStore) check(ctx context.Context, op, collection string) error {
	if err := ctx.Err(); err != nil {
		return storeErr(op, collection, err)
	}
	if s.hook != nil {
		if err := s.hook(op, collection); err != nil {
			return storeErr(op, collection, err)
		}
	}
	return nil
}
