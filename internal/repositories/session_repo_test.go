package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/episync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(userID string, ttl time.Duration) *models.Session {
	return &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Facility:  "Sukuta Health Centre",
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
}

func TestSessionRepository_Create(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	userID := uuid.NewString()
	defer repo.DeleteAllForUser(ctx, userID)

	session := newTestSession(userID, time.Hour)
	require.NoError(t, repo.Create(ctx, session))

	retrieved, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, userID, retrieved.UserID)
	assert.Equal(t, "Sukuta Health Centre", retrieved.Facility)

	sessions, err := repo.ListByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, session.ID, sessions[0].ID)
}

func TestSessionRepository_RejectsExpired(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)

	err := repo.Create(context.Background(), newTestSession(uuid.NewString(), -time.Second))
	assert.Error(t, err)
}

func TestSessionRepository_ExpiredSessionsArePruned(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	userID := uuid.NewString()
	defer repo.DeleteAllForUser(ctx, userID)

	short := newTestSession(userID, time.Second)
	long := newTestSession(userID, time.Hour)
	require.NoError(t, repo.Create(ctx, short))
	require.NoError(t, repo.Create(ctx, long))

	time.Sleep(1500 * time.Millisecond)

	sessions, err := repo.ListByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, long.ID, sessions[0].ID)

	members, err := client.SMembers(ctx, userSessionsKey(userID)).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{long.ID}, members)
}

func TestSessionRepository_Delete(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	userID := uuid.NewString()

	session := newTestSession(userID, time.Hour)
	require.NoError(t, repo.Create(ctx, session))
	require.NoError(t, repo.Delete(ctx, session.ID))

	_, err := repo.GetByID(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, session.ID), ErrNotFound)
}

func TestSessionRepository_DeleteAllForUser(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	userID := uuid.NewString()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newTestSession(userID, time.Hour)))
	}

	require.NoError(t, repo.DeleteAllForUser(ctx, userID))

	sessions, err := repo.ListByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
