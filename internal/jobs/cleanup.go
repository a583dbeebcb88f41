package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/nowplaying-relay-go/internal/audit"
	"github.com/openclaw/nowplaying-relay-go/internal/repository"
)

// Forgetter drops the cached playback and background refresh for an id.
type Forgetter interface {
	Forget(ctx context.Context, id string)
}

type CleanupJob struct {
	sessionRepo  repository.SessionRepository
	stateRepo    repository.OAuthStateRepository
	snapshotRepo repository.SnapshotRepository
	playback     Forgetter
	idleTTL      time.Duration
	interval     time.Duration
	done         chan struct{}
	now          func() time.Time
}

func NewCleanupJob(
	sessionRepo repository.SessionRepository,
	stateRepo repository.OAuthStateRepository,
	snapshotRepo repository.SnapshotRepository,
	playback Forgetter,
	idleTTL time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sessionRepo:  sessionRepo,
		stateRepo:    stateRepo,
		snapshotRepo: snapshotRepo,
		playback:     playback,
		idleTTL:      idleTTL,
		interval:     interval,
		done:         make(chan struct{}),
		now:          time.Now,
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "idle sessions", j.evictIdleSessions)
	j.runCleanup(ctx, "oauth states", j.stateRepo.DeleteExpired)
	j.runCleanup(ctx, "playback snapshots", j.snapshotRepo.DeleteExpired)
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}

// evictIdleSessions removes sessions that have not been touched within the
// idle TTL. Refreshes bump UpdatedAt, so any tenant still being polled stays.
func (j *CleanupJob) evictIdleSessions(ctx context.Context) (int64, error) {
	if j.idleTTL <= 0 {
		return 0, nil
	}

	ids, err := j.sessionRepo.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := j.now().Add(-j.idleTTL)
	var evicted int64
	for _, id := range ids {
		session, err := j.sessionRepo.Get(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("id", id).Msg("failed to load session during cleanup")
			continue
		}
		if session == nil || session.UpdatedAt.After(cutoff) {
			continue
		}

		if err := j.sessionRepo.Delete(ctx, id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("failed to evict session")
			continue
		}
		j.playback.Forget(ctx, id)
		audit.Log(ctx, audit.Event{Type: audit.EventSessionEvicted, CorrelationID: id})
		evicted++
	}
	return evicted, nil
}
