package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"

	"github.com/openclaw/nowplaying-relay-go/internal/model"
	"github.com/openclaw/nowplaying-relay-go/internal/provider"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) AuthCodeURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *mockProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func (m *mockProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func (m *mockProvider) CurrentPlayback(ctx context.Context, accessToken string) (*provider.Playback, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Playback), args.Error(1)
}

func (m *mockProvider) Control(ctx context.Context, accessToken string, action provider.Action) error {
	args := m.Called(ctx, accessToken, action)
	return args.Error(0)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingWatcher struct {
	mu        sync.Mutex
	watched   map[string]int
	unwatched map[string]int
}

func newRecordingWatcher() *recordingWatcher {
	return &recordingWatcher{watched: map[string]int{}, unwatched: map[string]int{}}
}

func (w *recordingWatcher) Watch(id string) {
	w.mu.Lock()
	w.watched[id]++
	w.mu.Unlock()
}

func (w *recordingWatcher) Unwatch(id string) {
	w.mu.Lock()
	w.unwatched[id]++
	w.mu.Unlock()
}

func (w *recordingWatcher) Watched(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched[id]
}

func (w *recordingWatcher) Unwatched(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unwatched[id]
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []*model.PlaybackSnapshot
}

func (p *recordingPublisher) PublishSnapshot(ctx context.Context, snapshot *model.PlaybackSnapshot) error {
	p.mu.Lock()
	p.published = append(p.published, snapshot)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}
