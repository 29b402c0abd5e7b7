package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prudhvinik1/episync/internal/models"
)

// Collection is a CRUD facade over one named collection, stored as a JSON
// array of entities in insertion order. Each mutation rewrites the whole
// array; there are no partial updates.
type Collection[T models.Entity[T]] struct {
	name  string
	kv    KVStore
	clock func() time.Time
}

func NewCollection[T models.Entity[T]](kv KVStore, name string, clock func() time.Time) *Collection[T] {
	if clock == nil {
		clock = time.Now
	}
	return &Collection[T]{name: name, kv: kv, clock: clock}
}

func (c *Collection[T]) Name() string {
	return c.name
}

func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	payload, err := c.kv.Get(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return c.decode(payload)
}

func (c *Collection[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T

	items, err := c.List(ctx)
	if err != nil {
		return zero, err
	}
	for _, item := range items {
		if item.GetID() == id {
			return item, nil
		}
	}
	return zero, ErrNotFound
}

// Upsert stamps entity with the current time and inserts it, or replaces the
// entity with the same id in place. The stamped entity is returned.
func (c *Collection[T]) Upsert(ctx context.Context, entity T) (T, error) {
	var zero T

	items, err := c.List(ctx)
	if err != nil {
		return zero, err
	}

	stamped := entity.Stamped(c.clock())
	replaced := false
	for i, item := range items {
		if item.GetID() == stamped.GetID() {
			items[i] = stamped
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, stamped)
	}

	if err := c.write(ctx, items); err != nil {
		return zero, err
	}
	return stamped, nil
}

func (c *Collection[T]) DeleteByID(ctx context.Context, id string) error {
	items, err := c.List(ctx)
	if err != nil {
		return err
	}

	kept := items[:0]
	found := false
	for _, item := range items {
		if item.GetID() == id {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return ErrNotFound
	}
	return c.write(ctx, kept)
}

// ReplaceWhere removes every entity matching drop and appends add, stamped
// with the current time, in a single rewrite of the collection.
func (c *Collection[T]) ReplaceWhere(ctx context.Context, drop func(T) bool, add []T) ([]T, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	now := c.clock()
	kept := make([]T, 0, len(items)+len(add))
	for _, item := range items {
		if drop != nil && drop(item) {
			continue
		}
		kept = append(kept, item)
	}
	stamped := make([]T, len(add))
	for i, item := range add {
		stamped[i] = item.Stamped(now)
	}
	kept = append(kept, stamped...)

	if err := c.write(ctx, kept); err != nil {
		return nil, err
	}
	return stamped, nil
}

// ReplaceAll overwrites the collection as given, keeping every UpdatedAt.
// Only the synchronizer writes through this path.
func (c *Collection[T]) ReplaceAll(ctx context.Context, items []T) error {
	return c.write(ctx, items)
}

func (c *Collection[T]) encode(items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", c.name, err)
	}
	return payload, nil
}

func (c *Collection[T]) decode(payload []byte) ([]T, error) {
	if len(payload) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", c.name, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (c *Collection[T]) write(ctx context.Context, items []T) error {
	payload, err := c.encode(items)
	if err != nil {
		return err
	}
	return c.kv.Put(ctx, c.name, payload)
}
