package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS leases (
	name       TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
)`

// SQLiteKVStore is the on-device store for the local replica.
type SQLiteKVStore struct {
	db *sql.DB
}

// NewSQLiteKVStore ensures the collections table exists in db.
func NewSQLiteKVStore(ctx context.Context, db *sql.DB) (*SQLiteKVStore, error) {
	if db == nil {
		return nil, errors.New("sqlite store: db is nil")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create sqlite tables: %w", err)
	}
	return &SQLiteKVStore{db: db}, nil
}

func (s *SQLiteKVStore) Get(ctx context.Context, collection string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM collections WHERE name = ?`, collection).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get", collection, err)
	}
	return payload, nil
}

func (s *SQLiteKVStore) Put(ctx context.Context, collection string, payload []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertCollectionSQLite, collection, payload); err != nil {
		return storeErr("put", collection, err)
	}
	return nil
}

// PutBatch writes every payload in one transaction.
func (s *SQLiteKVStore) PutBatch(ctx context.Context, payloads map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin batch on", batchName(payloads), err)
	}
	defer func() { _ = tx.Rollback() }()

	for collection, payload := range payloads {
		if _, err := tx.ExecContext(ctx, upsertCollectionSQLite, collection, payload); err != nil {
			return storeErr("put", collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit batch on", batchName(payloads), err)
	}
	return nil
}

func (s *SQLiteKVStore) Delete(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection); err != nil {
		return storeErr("delete", collection, err)
	}
	return nil
}

// AcquireLease takes or extends the lease row. The conditional upsert changes
// no row while another owner's lease is unexpired.
func (s *SQLiteKVStore) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, acquireLeaseSQLite, name, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, storeErr("lease", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("lease", name, err)
	}
	return n == 1, nil
}

func (s *SQLiteKVStore) ReleaseLease(ctx context.Context, name, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND owner = ?`, name, owner); err != nil {
		return storeErr("release", name, err)
	}
	return nil
}

func (s *SQLiteKVStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const upsertCollectionSQLite = `INSERT INTO collections (name, payload, updated_at)
	VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT (name) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at`

const acquireLeaseSQLite = `INSERT INTO leases (name, owner, expires_at)
	VALUES (?, ?, ?)
	ON CONFLICT (name) DO UPDATE SET
		owner = excluded.owner,
		expires_at = excluded.expires_at
	WHERE leases.owner = excluded.owner OR leases.expires_at <= ?`
