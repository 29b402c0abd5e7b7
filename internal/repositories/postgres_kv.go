package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS replica_collections (
	name       TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS replica_leases (
	name       TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// PostgresKVStore backs the remote replica. Each collection is one JSONB row.
type PostgresKVStore struct {
	pool *pgxpool.Pool
}

func NewPostgresKVStore(pool *pgxpool.Pool) *PostgresKVStore {
	return &PostgresKVStore{pool: pool}
}

// EnsureSchema creates the replica table if it does not exist yet.
func (r *PostgresKVStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create replica tables: %w", err)
	}
	return nil
}

func (r *PostgresKVStore) Get(ctx context.Context, collection string) ([]byte, error) {
	query := `SELECT payload FROM replica_collections WHERE name = $1`

	var payload []byte
	err := r.pool.QueryRow(ctx, query, collection).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get", collection, err)
	}
	return payload, nil
}

func (r *PostgresKVStore) Put(ctx context.Context, collection string, payload []byte) error {
	if _, err := r.pool.Exec(ctx, upsertCollectionPostgres, collection, payload); err != nil {
		return storeErr("put", collection, err)
	}
	return nil
}

// PutBatch writes every payload in one transaction.
func (r *PostgresKVStore) PutBatch(ctx context.Context, payloads map[string][]byte) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for collection, payload := range payloads {
			if _, err := tx.Exec(ctx, upsertCollectionPostgres, collection, payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeErr("put", batchName(payloads), err)
	}
	return nil
}

func (r *PostgresKVStore) Delete(ctx context.Context, collection string) error {
	query := `DELETE FROM replica_collections WHERE name = $1`

	if _, err := r.pool.Exec(ctx, query, collection); err != nil {
		return storeErr("delete", collection, err)
	}
	return nil
}

func (r *PostgresKVStore) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, acquireLeasePostgres, name, owner, ttl.Milliseconds())
	if err != nil {
		return false, storeErr("lease", name, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresKVStore) ReleaseLease(ctx context.Context, name, owner string) error {
	query := `DELETE FROM replica_leases WHERE name = $1 AND owner = $2`

	if _, err := r.pool.Exec(ctx, query, name, owner); err != nil {
		return storeErr("release", name, err)
	}
	return nil
}

func (r *PostgresKVStore) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const upsertCollectionPostgres = `INSERT INTO replica_collections (name, payload, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (name) DO UPDATE SET
		payload = EXCLUDED.payload,
		updated_at = NOW()`

const acquireLeasePostgres = `INSERT INTO replica_leases (name, owner, expires_at)
	VALUES ($1, $2, NOW() + $3 * INTERVAL '1 millisecond')
	ON CONFLICT (name) DO UPDATE SET
		owner = EXCLUDED.owner,
		expires_at = EXCLUDED.expires_at
	WHERE replica_leases.owner = EXCLUDED.owner OR replica_leases.expires_at <= NOW()`
