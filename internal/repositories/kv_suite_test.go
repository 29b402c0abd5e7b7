package repositories

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prudhvinik1/episync/internal/database"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// KVStoreSuite runs the same contract against every KVStore backend.
type KVStoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) KVStore
	kv       KVStore
	ctx      context.Context
}

func (s *KVStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.kv = s.newStore(s.T())
}

func (s *KVStoreSuite) TestGetMissingCollection() {
	payload, err := s.kv.Get(s.ctx, "nothing-here")
	s.Require().NoError(err)
	s.Nil(payload)
}

func (s *KVStoreSuite) TestPutGetDelete() {
	s.Require().NoError(s.kv.Put(s.ctx, "children", []byte(`[{"id":"c1"}]`)))

	payload, err := s.kv.Get(s.ctx, "children")
	s.Require().NoError(err)
	s.JSONEq(`[{"id":"c1"}]`, string(payload))

	s.Require().NoError(s.kv.Put(s.ctx, "children", []byte(`[]`)))
	payload, err = s.kv.Get(s.ctx, "children")
	s.Require().NoError(err)
	s.JSONEq(`[]`, string(payload))

	s.Require().NoError(s.kv.Delete(s.ctx, "children"))
	payload, err = s.kv.Get(s.ctx, "children")
	s.Require().NoError(err)
	s.Nil(payload)
}

func (s *KVStoreSuite) TestPutBatch() {
	batcher, ok := s.kv.(BatchPutter)
	if !ok {
		s.T().Skip("backend has no batch support")
	}

	err := batcher.PutBatch(s.ctx, map[string][]byte{
		"children": []byte(`[{"id":"c1"}]`),
		"records":  []byte(`[{"id":"r1"}]`),
	})
	s.Require().NoError(err)

	children, err := s.kv.Get(s.ctx, "children")
	s.Require().NoError(err)
	s.JSONEq(`[{"id":"c1"}]`, string(children))

	records, err := s.kv.Get(s.ctx, "records")
	s.Require().NoError(err)
	s.JSONEq(`[{"id":"r1"}]`, string(records))
}

func (s *KVStoreSuite) TestLease() {
	leaser, ok := s.kv.(Leaser)
	s.Require().True(ok, "every backend holds leases")

	acquired, err := leaser.AcquireLease(s.ctx, "sync", "owner-a", time.Minute)
	s.Require().NoError(err)
	s.True(acquired)

	acquired, err = leaser.AcquireLease(s.ctx, "sync", "owner-b", time.Minute)
	s.Require().NoError(err)
	s.False(acquired, "held by another owner")

	acquired, err = leaser.AcquireLease(s.ctx, "sync", "owner-a", time.Minute)
	s.Require().NoError(err)
	s.True(acquired, "the owner may extend its lease")

	s.Require().NoError(leaser.ReleaseLease(s.ctx, "sync", "owner-b"))
	acquired, err = leaser.AcquireLease(s.ctx, "sync", "owner-b", time.Minute)
	s.Require().NoError(err)
	s.False(acquired, "only the owner can release")

	s.Require().NoError(leaser.ReleaseLease(s.ctx, "sync", "owner-a"))
	acquired, err = leaser.AcquireLease(s.ctx, "sync", "owner-b", 50*time.Millisecond)
	s.Require().NoError(err)
	s.True(acquired)

	s.Eventually(func() bool {
		acquired, err := leaser.AcquireLease(s.ctx, "sync", "owner-a", time.Minute)
		return err == nil && acquired
	}, 2*time.Second, 20*time.Millisecond, "an expired lease can be taken over")
	s.Require().NoError(leaser.ReleaseLease(s.ctx, "sync", "owner-a"))
}

func TestMemoryKVStoreSuite(t *testing.T) {
	suite.Run(t, &KVStoreSuite{newStore: func(t *testing.T) KVStore {
		return NewMemoryKVStore()
	}})
}

func TestSQLiteKVStoreSuite(t *testing.T) {
	suite.Run(t, &KVStoreSuite{newStore: func(t *testing.T) KVStore {
		ctx := context.Background()
		db, err := database.NewSQLiteDB(ctx, ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		store, err := NewSQLiteKVStore(ctx, db)
		require.NoError(t, err)
		return store
	}})
}

func TestSQLiteKVStore_LeaseSpansConnections(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "episync.db")

	open := func() *SQLiteKVStore {
		db, err := database.NewSQLiteDB(ctx, path)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		store, err := NewSQLiteKVStore(ctx, db)
		require.NoError(t, err)
		return store
	}
	first, second := open(), open()

	release, err := NewStore(first, nil).AcquireLease(ctx, SyncLease, time.Minute)
	require.NoError(t, err)

	_, err = NewStore(second, nil).AcquireLease(ctx, SyncLease, time.Minute)
	require.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, release(ctx))
	_, err = NewStore(second, nil).AcquireLease(ctx, SyncLease, time.Minute)
	require.NoError(t, err)
}
