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

// SnapshotRepository holds the last playback snapshot per correlation id.
// Entries expire after the ttl given to Put.
type SnapshotRepository interface {
	Get(ctx context.Context, id string) (*model.PlaybackSnapshot, error)
	Put(ctx context.Context, snapshot *model.PlaybackSnapshot, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type snapshotEntry struct {
	snapshot  model.PlaybackSnapshot
	expiresAt time.Time
}

type memorySnapshotRepo struct {
	mu      sync.RWMutex
	entries map[string]snapshotEntry
	now     func() time.Time
}

func NewMemorySnapshotRepository() SnapshotRepository {
	return newMemorySnapshotRepository(time.Now)
}

func newMemorySnapshotRepository(now func() time.Time) *memorySnapshotRepo {
	return &memorySnapshotRepo{
		entries: make(map[string]snapshotEntry),
		now:     now,
	}
}

func (r *memorySnapshotRepo) Get(ctx context.Context, id string) (*model.PlaybackSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok || r.expired(entry) {
		return nil, nil
	}
	snapshot := entry.snapshot
	snapshot.ArtistNames = append([]string(nil), entry.snapshot.ArtistNames...)
	return &snapshot, nil
}

func (r *memorySnapshotRepo) Put(ctx context.Context, snapshot *model.PlaybackSnapshot, ttl time.Duration) error {
	entry := snapshotEntry{snapshot: *snapshot}
	entry.snapshot.ArtistNames = append([]string(nil), snapshot.ArtistNames...)
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}

	r.mu.Lock()
	r.entries[snapshot.ID] = entry
	r.mu.Unlock()
	return nil
}

func (r *memorySnapshotRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
	return nil
}

func (r *memorySnapshotRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, entry := range r.entries {
		if r.expired(entry) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (r *memorySnapshotRepo) expired(entry snapshotEntry) bool {
	return !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt)
}

type redisSnapshotRepo struct {
	client *redis.Client
}

// NewRedisSnapshotRepository stores snapshots as JSON under track:{id}.
func NewRedisSnapshotRepository(client *redis.Client) SnapshotRepository {
	return &redisSnapshotRepo{client: client}
}

func (r *redisSnapshotRepo) Get(ctx context.Context, id string) (*model.PlaybackSnapshot, error) {
	raw, err := r.client.Get(ctx, redisclient.TrackKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snapshot model.PlaybackSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snapshot, nil
}

func (r *redisSnapshotRepo) Put(ctx context.Context, snapshot *model.PlaybackSnapshot, ttl time.Duration) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return r.client.Set(ctx, redisclient.TrackKey(snapshot.ID), payload, ttl).Err()
}

func (r *redisSnapshotRepo) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, redisclient.TrackKey(id)).Err()
}

// DeleteExpired is a no-op; redis expires track keys itself.
func (r *redisSnapshotRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
