package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/openclaw/nowplaying-relay-go/internal/model"
)

// SessionRepository stores one Session per correlation id. Get returns
// (nil, nil) when no session exists.
type SessionRepository interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	Put(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, id string) error
	// List returns every stored id. Maintenance sweeps only.
	List(ctx context.Context) ([]string, error)
	// UpdateTokens writes a refreshed token set only when the stored session
	// still has params.CreatedAt. It reports whether the write happened.
	UpdateTokens(ctx context.Context, params model.UpdateTokensParams) (bool, error)
}

type memorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepo{sessions: make(map[string]model.Session)}
}

func (r *memorySessionRepo) Get(ctx context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (r *memorySessionRepo) Put(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = *session
	return nil
}

func (r *memorySessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

func (r *memorySessionRepo) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids, nil
}

func (r *memorySessionRepo) UpdateTokens(ctx context.Context, params model.UpdateTokensParams) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[params.ID]
	if !ok || !session.CreatedAt.Equal(params.CreatedAt) {
		return false, nil
	}

	session.AccessToken = params.AccessToken
	session.RefreshToken = params.RefreshToken
	session.ExpiresAt = params.ExpiresAt
	session.UpdatedAt = params.UpdatedAt
	r.sessions[params.ID] = session
	return true, nil
}
