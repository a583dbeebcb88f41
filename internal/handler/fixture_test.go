package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/openclaw/nowplaying-relay-go/internal/config"
	"github.com/openclaw/nowplaying-relay-go/internal/model"
	"github.com/openclaw/nowplaying-relay-go/internal/provider"
	"github.com/openclaw/nowplaying-relay-go/internal/repository"
	"github.com/openclaw/nowplaying-relay-go/internal/service"
	"github.com/openclaw/nowplaying-relay-go/internal/sse"
)

// fakeProvider is a canned provider.Provider that records what it was asked.
type fakeProvider struct {
	mu sync.Mutex

	exchangeErr   error
	playback      *provider.Playback
	playbackErr   error
	controlErr    error
	controls      []provider.Action
	playbackCalls int
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.test/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth2.Token{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (p *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return &oauth2.Token{
		AccessToken:  "access-refreshed",
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (p *fakeProvider) CurrentPlayback(ctx context.Context, accessToken string) (*provider.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playbackCalls++
	return p.playback, p.playbackErr
}

func (p *fakeProvider) Control(ctx context.Context, accessToken string, action provider.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.controlErr != nil {
		return p.controlErr
	}
	p.controls = append(p.controls, action)
	return nil
}

func (p *fakeProvider) sentControls() []provider.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.Action(nil), p.controls...)
}

type testEnv struct {
	sessions  repository.SessionRepository
	snapshots repository.SnapshotRepository
	provider  *fakeProvider
	playback  *service.PlaybackService
	broker    *sse.Broker
	router    chi.Router
}

type envOption func(*envConfig)

type envConfig struct {
	stateMode       string
	controlsEnabled bool
}

func withIDState() envOption {
	return func(c *envConfig) { c.stateMode = config.StateModeID }
}

func withControlsDisabled() envOption {
	return func(c *envConfig) { c.controlsEnabled = false }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{stateMode: config.StateModeNonce, controlsEnabled: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	sessions := repository.NewMemorySessionRepository()
	states := repository.NewMemoryOAuthStateRepository()
	snapshots := repository.NewMemorySnapshotRepository()
	prov := &fakeProvider{}

	tokens := service.NewTokenRefresher(sessions, prov, time.Minute)
	playbackService := service.NewPlaybackService(sessions, snapshots, tokens, prov, service.PlaybackOptions{
		Freshness: 5 * time.Second,
		TTL:       time.Minute,
		ErrorMode: config.PlaybackErrorModeError,
	})
	broker := sse.NewBroker(nil)
	playbackService.SetPublisher(broker)
	t.Cleanup(broker.Close)

	authService := service.NewAuthService(sessions, states, prov, playbackService, service.AuthOptions{
		StateMode: cfg.stateMode,
		StateTTL:  10 * time.Minute,
	})
	controlService := service.NewControlService(tokens, prov, cfg.controlsEnabled)

	authHandler := NewAuthHandler(authService)
	playbackHandler := NewPlaybackHandler(playbackService)
	controlHandler := NewControlHandler(controlService)
	eventsHandler := NewEventsHandler(broker, playbackService)

	r := chi.NewRouter()
	r.Get("/health", NewHealthHandler(broker, nil).ServeHTTP)
	r.Get("/login", authHandler.Login)
	r.Get("/callback", authHandler.Callback)
	r.Post("/revoke", authHandler.Revoke)
	r.Get("/status", authHandler.Status)
	r.Get("/current-track", playbackHandler.CurrentTrack)
	r.Post("/play", controlHandler.Action(provider.ActionPlay))
	r.Post("/pause", controlHandler.Action(provider.ActionPause))
	r.Post("/next", controlHandler.Action(provider.ActionNext))
	r.Post("/previous", controlHandler.Action(provider.ActionPrevious))
	r.Post("/playback-control", controlHandler.PlaybackControl)
	r.Post("/play-pause", controlHandler.PlayPause)
	r.Get("/events", eventsHandler.ServeHTTP)

	return &testEnv{
		sessions:  sessions,
		snapshots: snapshots,
		provider:  prov,
		playback:  playbackService,
		broker:    broker,
		router:    r,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedSession(t *testing.T, id string) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, e.sessions.Put(context.Background(), &model.Session{
		ID:           id,
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    now.Add(time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
}

func playingTrack() *provider.Playback {
	return &provider.Playback{
		IsPlaying:            true,
		ProgressMs:           42000,
		CurrentlyPlayingType: provider.ItemTypeTrack,
		Item: &provider.Item{
			Type:       provider.ItemTypeTrack,
			Name:       "Windowlicker",
			DurationMs: 367000,
			Artists:    []provider.Artist{{Name: "Aphex Twin"}},
		},
	}
}
