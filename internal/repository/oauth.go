package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openclaw/nowplaying-relay-go/internal/model"
	redisclient "github.com/openclaw/nowplaying-relay-go/internal/redis"
)

// OAuthStateRepository keeps the state values handed to the provider until
// the callback comes back. Consume is single-use and returns (nil, nil) for
// unknown or expired states.
type OAuthStateRepository interface {
	Create(ctx context.Context, params model.CreateOAuthStateParams) (*model.OAuthState, error)
	Consume(ctx context.Context, state string) (*model.OAuthState, error)
	// HasPending reports whether a login for the correlation id is still
	// waiting for its callback.
	HasPending(ctx context.Context, correlationID string) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type memoryOAuthStateRepo struct {
	mu      sync.Mutex
	states  map[string]model.OAuthState
	pending map[string]map[string]time.Time // correlation id -> state -> expiry
	now     func() time.Time
}

func NewMemoryOAuthStateRepository() OAuthStateRepository {
	return newMemoryOAuthStateRepository(time.Now)
}

func newMemoryOAuthStateRepository(now func() time.Time) *memoryOAuthStateRepo {
	return &memoryOAuthStateRepo{
		states:  make(map[string]model.OAuthState),
		pending: make(map[string]map[string]time.Time),
		now:     now,
	}
}

func (r *memoryOAuthStateRepo) Create(ctx context.Context, params model.CreateOAuthStateParams) (*model.OAuthState, error) {
	state := model.OAuthState{
		State:         params.State,
		CorrelationID: params.CorrelationID,
		ExpiresAt:     params.ExpiresAt,
		CreatedAt:     r.now(),
	}

	r.mu.Lock()
	r.states[params.State] = state
	if r.pending[params.CorrelationID] == nil {
		r.pending[params.CorrelationID] = make(map[string]time.Time)
	}
	r.pending[params.CorrelationID][params.State] = params.ExpiresAt
	r.mu.Unlock()

	return &state, nil
}

func (r *memoryOAuthStateRepo) Consume(ctx context.Context, state string) (*model.OAuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found, ok := r.states[state]
	if !ok {
		return nil, nil
	}
	delete(r.states, state)
	r.forgetPending(found.CorrelationID, state)

	if !r.now().Before(found.ExpiresAt) {
		return nil, nil
	}
	return &found, nil
}

func (r *memoryOAuthStateRepo) HasPending(ctx context.Context, correlationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, expiresAt := range r.pending[correlationID] {
		if now.Before(expiresAt) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryOAuthStateRepo) forgetPending(correlationID, state string) {
	logins := r.pending[correlationID]
	delete(logins, state)
	if len(logins) == 0 {
		delete(r.pending, correlationID)
	}
}

func (r *memoryOAuthStateRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var removed int64
	for key, state := range r.states {
		if !now.Before(state.ExpiresAt) {
			delete(r.states, key)
			removed++
		}
	}
	for id, logins := range r.pending {
		for state, expiresAt := range logins {
			if !now.Before(expiresAt) {
				r.forgetPending(id, state)
			}
		}
	}
	return removed, nil
}

type redisOAuthStateRepo struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisOAuthStateRepository stores states under oauth_state:{state} and
// the id's outstanding states in a sorted set oauth_pending:{id}, scored by
// expiry in unix milliseconds.
func NewRedisOAuthStateRepository(client *redis.Client) OAuthStateRepository {
	return &redisOAuthStateRepo{client: client, now: time.Now}
}

func (r *redisOAuthStateRepo) Create(ctx context.Context, params model.CreateOAuthStateParams) (*model.OAuthState, error) {
	state := model.OAuthState{
		State:         params.State,
		CorrelationID: params.CorrelationID,
		ExpiresAt:     params.ExpiresAt,
		CreatedAt:     r.now(),
	}

	ttl := params.ExpiresAt.Sub(state.CreatedAt)
	if ttl <= 0 {
		return nil, fmt.Errorf("oauth state already expired")
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode oauth state: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisclient.OAuthStateKey(params.State), payload, ttl)
	pendingKey := redisclient.OAuthPendingKey(params.CorrelationID)
	pipe.ZAdd(ctx, pendingKey, redis.Z{Score: float64(params.ExpiresAt.UnixMilli()), Member: params.State})
	pipe.PExpire(ctx, pendingKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store oauth state: %w", err)
	}

	return &state, nil
}

func (r *redisOAuthStateRepo) Consume(ctx context.Context, state string) (*model.OAuthState, error) {
	raw, err := r.client.GetDel(ctx, redisclient.OAuthStateKey(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume oauth state: %w", err)
	}

	var found model.OAuthState
	if err := json.Unmarshal(raw, &found); err != nil {
		return nil, fmt.Errorf("decode oauth state: %w", err)
	}

	if err := r.client.ZRem(ctx, redisclient.OAuthPendingKey(found.CorrelationID), state).Err(); err != nil {
		return nil, fmt.Errorf("clear pending login: %w", err)
	}
	return &found, nil
}

func (r *redisOAuthStateRepo) HasPending(ctx context.Context, correlationID string) (bool, error) {
	after := fmt.Sprintf("(%d", r.now().UnixMilli())
	n, err := r.client.ZCount(ctx, redisclient.OAuthPendingKey(correlationID), after, "+inf").Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpired is a no-op; redis expires state keys itself.
func (r *redisOAuthStateRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
