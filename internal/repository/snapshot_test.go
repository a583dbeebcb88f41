package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/nowplaying-relay-go/internal/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemorySnapshotRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns a stored snapshot until its ttl", func(t *testing.T) {
		clock := newFakeClock()
		repo := newMemorySnapshotRepository(clock.Now)

		require.NoError(t, repo.Put(ctx, &model.PlaybackSnapshot{
			ID:          "abc123",
			State:       model.PlaybackPlaying,
			TrackTitle:  "One More Time",
			ArtistNames: []string{"Daft Punk"},
			CapturedAt:  clock.Now(),
		}, time.Minute))

		got, err := repo.Get(ctx, "abc123")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "One More Time", got.TrackTitle)

		clock.Advance(time.Minute)
		got, err = repo.Get(ctx, "abc123")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("returned snapshots do not share artist slices", func(t *testing.T) {
		repo := NewMemorySnapshotRepository()
		require.NoError(t, repo.Put(ctx, &model.PlaybackSnapshot{ID: "abc123", ArtistNames: []string{"A"}}, time.Minute))

		got, _ := repo.Get(ctx, "abc123")
		got.ArtistNames[0] = "mutated"

		again, _ := repo.Get(ctx, "abc123")
		assert.Equal(t, []string{"A"}, again.ArtistNames)
	})

	t.Run("delete expired purges only stale entries", func(t *testing.T) {
		clock := newFakeClock()
		repo := newMemorySnapshotRepository(clock.Now)

		require.NoError(t, repo.Put(ctx, &model.PlaybackSnapshot{ID: "short"}, time.Second))
		require.NoError(t, repo.Put(ctx, &model.PlaybackSnapshot{ID: "long"}, time.Hour))
		clock.Advance(time.Minute)

		removed, err := repo.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		got, _ := repo.Get(ctx, "long")
		assert.NotNil(t, got)
	})

	t.Run("delete removes the snapshot", func(t *testing.T) {
		repo := NewMemorySnapshotRepository()
		require.NoError(t, repo.Put(ctx, &model.PlaybackSnapshot{ID: "abc123"}, 0))
		require.NoError(t, repo.Delete(ctx, "abc123"))

		got, err := repo.Get(ctx, "abc123")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestMemoryOAuthStateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("consume returns the correlation id once", func(t *testing.T) {
		clock := newFakeClock()
		repo := newMemoryOAuthStateRepository(clock.Now)

		_, err := repo.Create(ctx, model.CreateOAuthStateParams{
			State:         "nonce",
			CorrelationID: "abc123",
			ExpiresAt:     clock.Now().Add(10 * time.Minute),
		})
		require.NoError(t, err)

		pending, _ := repo.HasPending(ctx, "abc123")
		assert.True(t, pending)

		state, err := repo.Consume(ctx, "nonce")
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, "abc123", state.CorrelationID)

		again, err := repo.Consume(ctx, "nonce")
		require.NoError(t, err)
		assert.Nil(t, again)

		pending, _ = repo.HasPending(ctx, "abc123")
		assert.False(t, pending)
	})

	t.Run("overlapping logins stay pending until each is consumed", func(t *testing.T) {
		clock := newFakeClock()
		repo := newMemoryOAuthStateRepository(clock.Now)

		for _, nonce := range []string{"first", "second"} {
			_, err := repo.Create(ctx, model.CreateOAuthStateParams{
				State:         nonce,
				CorrelationID: "abc123",
				ExpiresAt:     clock.Now().Add(10 * time.Minute),
			})
			require.NoError(t, err)
		}

		state, err := repo.Consume(ctx, "first")
		require.NoError(t, err)
		require.NotNil(t, state)

		pending, _ := repo.HasPending(ctx, "abc123")
		assert.True(t, pending)

		state, err = repo.Consume(ctx, "second")
		require.NoError(t, err)
		require.NotNil(t, state)

		pending, _ = repo.HasPending(ctx, "abc123")
		assert.False(t, pending)
	})

	t.Run("an expired login does not mask a live one", func(t *testing.T) {
		clock := newFakeClock()
		repo := newMemoryOAuthStateRepository(clock.Now)

		_, err := repo.Create(ctx, model.CreateOAuthStateParams{
			State:         "old",
			CorrelationID: "abc123",
			ExpiresAt:     clock.Now().Add(time.Minute),
		})
		require.NoError(t, err)
		_, err = repo.Create(ctx, model.CreateOAuthStateParams{
			State:         "new",
			CorrelationID: "abc123",
			ExpiresAt:     clock.Now().Add(10 * time.Minute),
		})
		require.NoError(t, err)

		clock.Advance(2 * time.Minute)
		_, err = repo.DeleteExpired(ctx)
		require.NoError(t, err)

		pending, _ := repo.HasPending(ctx, "abc123")
		assert.True(t, pending)
	})

	t.Run("expired states are rejected", func(t *testing.T) {
		clock := newFakeClock()
		repo := newMemoryOAuthStateRepository(clock.Now)

		_, err := repo.Create(ctx, model.CreateOAuthStateParams{
			State:         "nonce",
			CorrelationID: "abc123",
			ExpiresAt:     clock.Now().Add(time.Minute),
		})
		require.NoError(t, err)

		clock.Advance(2 * time.Minute)
		pending, _ := repo.HasPending(ctx, "abc123")
		assert.False(t, pending)

		state, err := repo.Consume(ctx, "nonce")
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("delete expired purges stale states", func(t *testing.T) {
		clock := newFakeClock()
		repo := newMemoryOAuthStateRepository(clock.Now)

		_, _ = repo.Create(ctx, model.CreateOAuthStateParams{State: "old", CorrelationID: "a", ExpiresAt: clock.Now().Add(time.Minute)})
		_, _ = repo.Create(ctx, model.CreateOAuthStateParams{State: "new", CorrelationID: "b", ExpiresAt: clock.Now().Add(time.Hour)})
		clock.Advance(10 * time.Minute)

		removed, err := repo.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		state, _ := repo.Consume(ctx, "new")
		assert.NotNil(t, state)
	})
}
