package repositories

import (
	"context"
	"time"

	"github.com/prudhvinik1/episync/internal/models"
)

// KVStore persists one opaque payload per collection name. Get returns a nil
// payload and no error when the collection has never been written.
type KVStore interface {
	Get(ctx context.Context, collection string) ([]byte, error)
	Put(ctx context.Context, collection string, payload []byte) error
	Delete(ctx context.Context, collection string) error
}

// BatchPutter is implemented by stores that can write several collections
// atomically.
type BatchPutter interface {
	PutBatch(ctx context.Context, payloads map[string][]byte) error
}

// Leaser is implemented by stores that can hold a named lease visible to
// every process opening the same backend. AcquireLease reports false while
// another owner holds an unexpired lease; the current owner may re-acquire
// to extend it.
type Leaser interface {
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error
}

// Pinger is implemented by networked stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}
