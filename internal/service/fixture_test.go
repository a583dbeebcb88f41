package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/nowplaying-relay-go/internal/config"
	"github.com/openclaw/nowplaying-relay-go/internal/model"
	"github.com/openclaw/nowplaying-relay-go/internal/provider"
	"github.com/openclaw/nowplaying-relay-go/internal/repository"
)

const (
	testSkew      = 60 * time.Second
	testFreshness = 5 * time.Second
)

type fixture struct {
	clock     *testClock
	provider  *mockProvider
	sessions  repository.SessionRepository
	snapshots repository.SnapshotRepository
	states    repository.OAuthStateRepository
	watcher   *recordingWatcher
	publisher *recordingPublisher
	tokens    *TokenRefresher
	playback  *PlaybackService
	auth      *AuthService
	control   *ControlService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	stateMode string
	errorMode string
	controls  bool
}

func withStateMode(mode string) fixtureOption {
	return func(c *fixtureConfig) { c.stateMode = mode }
}

func withErrorMode(mode string) fixtureOption {
	return func(c *fixtureConfig) { c.errorMode = mode }
}

func withControlsDisabled() fixtureOption {
	return func(c *fixtureConfig) { c.controls = false }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{
		stateMode: config.StateModeNonce,
		errorMode: config.PlaybackErrorModeError,
		controls:  true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		clock:     newTestClock(),
		provider:  &mockProvider{},
		sessions:  repository.NewMemorySessionRepository(),
		snapshots: repository.NewMemorySnapshotRepository(),
		states:    repository.NewMemoryOAuthStateRepository(),
		watcher:   newRecordingWatcher(),
		publisher: &recordingPublisher{},
	}

	f.tokens = NewTokenRefresher(f.sessions, f.provider, testSkew)
	f.tokens.now = f.clock.Now

	f.playback = NewPlaybackService(f.sessions, f.snapshots, f.tokens, f.provider, PlaybackOptions{
		Freshness: testFreshness,
		TTL:       time.Minute,
		ErrorMode: cfg.errorMode,
	})
	f.playback.now = f.clock.Now
	f.playback.SetWatcher(f.watcher)
	f.playback.SetPublisher(f.publisher)

	f.auth = NewAuthService(f.sessions, f.states, f.provider, f.playback, AuthOptions{
		StateMode: cfg.stateMode,
		StateTTL:  10 * time.Minute,
	})
	f.auth.now = f.clock.Now

	f.control = NewControlService(f.tokens, f.provider, cfg.controls)
	return f
}

// seedSession stores a session whose access token expires after ttl.
func (f *fixture) seedSession(t *testing.T, id string, ttl time.Duration) *model.Session {
	t.Helper()
	now := f.clock.Now().UTC().Truncate(time.Millisecond)
	session := &model.Session{
		ID:           id,
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.sessions.Put(context.Background(), session))
	return session
}

func playingTrack() *provider.Playback {
	return &provider.Playback{
		IsPlaying:            true,
		ProgressMs:           42000,
		CurrentlyPlayingType: provider.ItemTypeTrack,
		Item: &provider.Item{
			Type:       provider.ItemTypeTrack,
			Name:       "Get Lucky",
			DurationMs: 248000,
			Artists:    []provider.Artist{{Name: "Daft Punk"}, {Name: "Pharrell Williams"}},
			Album:      &provider.Album{Name: "Random Access Memories"},
		},
	}
}
