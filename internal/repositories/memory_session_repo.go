package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/prudhvinik1/episync/internal/models"
)

// MemorySessionRepository keeps sessions in process memory. It backs the CLI
// and tests, where no Redis is available. Expired sessions read as absent.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	clock    func() time.Time
}

func NewMemorySessionRepository(clock func() time.Time) *MemorySessionRepository {
	if clock == nil {
		clock = time.Now
	}
	return &MemorySessionRepository{sessions: make(map[string]models.Session), clock: clock}
}

func (r *MemorySessionRepository) Create(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

func (r *MemorySessionRepository) GetByID(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live(id)
}

func (r *MemorySessionRepository) ListByUserID(_ context.Context, userID string) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Session
	for id, s := range r.sessions {
		if s.UserID != userID {
			continue
		}
		if session, err := r.live(id); err == nil {
			out = append(out, session)
		}
	}
	return out, nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.live(id); err != nil {
		return err
	}
	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) DeleteAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

// live must be called with mu held. It drops the session once expired.
func (r *MemorySessionRepository) live(id string) (*models.Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.ExpiresAt.After(r.clock()) {
		delete(r.sessions, id)
		return nil, ErrNotFound
	}
	return &s, nil
}
