package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/nowplaying-relay-go/internal/config"
	apperrors "github.com/openclaw/nowplaying-relay-go/internal/errors"
	"github.com/openclaw/nowplaying-relay-go/internal/model"
	"github.com/openclaw/nowplaying-relay-go/internal/provider"
	"github.com/openclaw/nowplaying-relay-go/internal/repository"
)

// PlaybackWatcher keeps a background refresh running for ids that are being
// read.
type PlaybackWatcher interface {
	Watch(id string)
	Unwatch(id string)
}

// PlaybackPublisher is told about every snapshot that differs from the
// previous one.
type PlaybackPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot *model.PlaybackSnapshot) error
}

type PlaybackOptions struct {
	// Freshness is how long a cached snapshot is served without asking the
	// provider again.
	Freshness time.Duration
	// TTL bounds how long a snapshot survives in the store.
	TTL       time.Duration
	ErrorMode string
}

// PlaybackService is the cached view of what each tenant is playing.
type PlaybackService struct {
	sessions  repository.SessionRepository
	snapshots repository.SnapshotRepository
	tokens    *TokenRefresher
	provider  provider.Provider
	opts      PlaybackOptions
	watcher   PlaybackWatcher
	publisher PlaybackPublisher
	now       func() time.Time
}

func NewPlaybackService(
	sessions repository.SessionRepository,
	snapshots repository.SnapshotRepository,
	tokens *TokenRefresher,
	prov provider.Provider,
	opts PlaybackOptions,
) *PlaybackService {
	return &PlaybackService{
		sessions:  sessions,
		snapshots: snapshots,
		tokens:    tokens,
		provider:  prov,
		opts:      opts,
		now:       time.Now,
	}
}

// SetWatcher wires the background poller. It is set after construction
// because the poller itself refreshes through this service.
func (s *PlaybackService) SetWatcher(w PlaybackWatcher) {
	s.watcher = w
}

func (s *PlaybackService) SetPublisher(p PlaybackPublisher) {
	s.publisher = p
}

// Read serves the cached snapshot while it is fresh and refreshes it
// synchronously otherwise.
func (s *PlaybackService) Read(ctx context.Context, id string) (*model.PlaybackSnapshot, error) {
	if id == "" {
		return nil, apperrors.MissingCorrelationID()
	}

	snapshot := s.Peek(ctx, id)
	if snapshot == nil || snapshot.Age(s.now()) >= s.opts.Freshness {
		snapshot = s.Refresh(ctx, id)
	}

	if snapshot.State != model.PlaybackNoSession && s.watcher != nil {
		s.watcher.Watch(id)
	}
	return snapshot, nil
}

// Peek returns the cached snapshot without touching the provider.
func (s *PlaybackService) Peek(ctx context.Context, id string) *model.PlaybackSnapshot {
	snapshot, err := s.snapshots.Get(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("failed to load cached snapshot")
		return nil
	}
	return snapshot
}

// Refresh asks the provider for the current playback of id and stores the
// result. Failures are reported inside the snapshot, never as an error.
func (s *PlaybackService) Refresh(ctx context.Context, id string) *model.PlaybackSnapshot {
	previous := s.Peek(ctx, id)
	snapshot := s.capture(ctx, id, previous)

	// Canceled by Forget mid-flight; storing now would outlive the revoke.
	if ctx.Err() != nil {
		return snapshot
	}

	// A revoke that finished while the provider call was in flight has
	// already cleared the cache; keep it cleared.
	if snapshot.State != model.PlaybackNoSession {
		current, err := s.sessions.Get(ctx, id)
		if err == nil && current == nil {
			return model.NoSessionSnapshot(id, string(apperrors.ErrCodeNotLogged), s.now())
		}
	}

	if err := s.snapshots.Put(ctx, snapshot, s.opts.TTL); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("failed to store snapshot")
	}

	if s.publisher != nil && !snapshot.Equivalent(previous) {
		if err := s.publisher.PublishSnapshot(ctx, snapshot); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("failed to publish snapshot")
		}
	}
	return snapshot
}

// Forget drops the cached snapshot and stops background refreshes for id.
func (s *PlaybackService) Forget(ctx context.Context, id string) {
	if s.watcher != nil {
		s.watcher.Unwatch(id)
	}
	if err := s.snapshots.Delete(ctx, id); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("failed to delete snapshot")
	}
}

// Watch starts background refreshes for id.
func (s *PlaybackService) Watch(id string) {
	if s.watcher != nil {
		s.watcher.Watch(id)
	}
}

func (s *PlaybackService) capture(ctx context.Context, id string, previous *model.PlaybackSnapshot) *model.PlaybackSnapshot {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("failed to load session")
		return s.errorSnapshot(id, previous, err)
	}
	if session == nil {
		return model.NoSessionSnapshot(id, string(apperrors.ErrCodeNotLogged), s.now())
	}

	session, err = s.tokens.EnsureValid(ctx, session)
	if err != nil {
		code := apperrors.GetCode(err)
		if code == apperrors.ErrCodeRefreshError || code == apperrors.ErrCodeNotLogged {
			return model.NoSessionSnapshot(id, string(code), s.now())
		}
		return s.errorSnapshot(id, previous, err)
	}

	playback, err := s.provider.CurrentPlayback(ctx, session.AccessToken)
	capturedAt := s.now()
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("playback request failed")
		return s.errorSnapshot(id, previous, err)
	}

	return mapPlayback(id, playback, previous, capturedAt)
}

// errorSnapshot reports an upstream failure according to the configured
// error mode.
func (s *PlaybackService) errorSnapshot(id string, previous *model.PlaybackSnapshot, err error) *model.PlaybackSnapshot {
	if s.opts.ErrorMode == config.PlaybackErrorModePaused {
		snapshot := pausedFrom(id, previous)
		snapshot.CapturedAt = s.now()
		return snapshot
	}

	return &model.PlaybackSnapshot{
		ID:           id,
		State:        model.PlaybackProviderError,
		CapturedAt:   s.now(),
		ErrorCode:    string(apperrors.ErrCodeProviderError),
		ErrorMessage: provider.FormatError(err),
	}
}

func mapPlayback(id string, playback *provider.Playback, previous *model.PlaybackSnapshot, capturedAt time.Time) *model.PlaybackSnapshot {
	if playback == nil {
		return &model.PlaybackSnapshot{
			ID:         id,
			State:      model.PlaybackPaused,
			CapturedAt: capturedAt,
		}
	}

	item := playback.Item
	if item == nil || item.Type == provider.ItemTypeAd || playback.CurrentlyPlayingType == provider.ItemTypeAd {
		if !playback.IsPlaying {
			snapshot := pausedFrom(id, previous)
			snapshot.CapturedAt = capturedAt
			return snapshot
		}
		return unsupported(id, capturedAt)
	}

	artists := item.ArtistNames()
	if item.Name == "" || len(artists) == 0 {
		return unsupported(id, capturedAt)
	}

	snapshot := &model.PlaybackSnapshot{
		ID:          id,
		State:       model.PlaybackPaused,
		IsPlaying:   playback.IsPlaying,
		TrackTitle:  item.Name,
		ArtistNames: artists,
		ProgressMs:  playback.ProgressMs,
		DurationMs:  item.DurationMs,
		CapturedAt:  capturedAt,
	}
	if playback.IsPlaying {
		snapshot.State = model.PlaybackPlaying
	}
	return snapshot
}

// pausedFrom keeps the last known track metadata, if any.
func pausedFrom(id string, previous *model.PlaybackSnapshot) *model.PlaybackSnapshot {
	snapshot := &model.PlaybackSnapshot{ID: id, State: model.PlaybackPaused}
	if previous != nil && previous.HasTrack() {
		snapshot.TrackTitle = previous.TrackTitle
		snapshot.ArtistNames = previous.ArtistNames
		snapshot.ProgressMs = previous.ProgressMs
		snapshot.DurationMs = previous.DurationMs
	}
	return snapshot
}

func unsupported(id string, capturedAt time.Time) *model.PlaybackSnapshot {
	return &model.PlaybackSnapshot{
		ID:         id,
		State:      model.PlaybackUnsupportedMedia,
		CapturedAt: capturedAt,
		ErrorCode:  string(apperrors.ErrCodeUnsupportedMedia),
	}
}
