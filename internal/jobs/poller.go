package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/nowplaying-relay-go/internal/model"
)

// Refresher produces a fresh snapshot for one tenant.
type Refresher interface {
	Refresh(ctx context.Context, id string) *model.PlaybackSnapshot
}

type pollTask struct {
	cancel   context.CancelFunc
	lastSeen time.Time
}

// PlaybackPoller runs one cancelable refresh loop per watched tenant, so the
// provider is asked at a fixed cadence no matter how often clients poll.
// A loop ends on Unwatch, when the tenant has no session, or when nobody
// has read its snapshot within the idle timeout.
type PlaybackPoller struct {
	refresher   Refresher
	interval    time.Duration
	idleTimeout time.Duration

	mu    sync.Mutex
	tasks map[string]*pollTask

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewPlaybackPoller(refresher Refresher, interval, idleTimeout time.Duration) *PlaybackPoller {
	ctx, cancel := context.WithCancel(context.Background())
	return &PlaybackPoller{
		refresher:   refresher,
		interval:    interval,
		idleTimeout: idleTimeout,
		tasks:       make(map[string]*pollTask),
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
}

// Watch starts a loop for id, or records activity on the running one.
func (p *PlaybackPoller) Watch(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	if task, ok := p.tasks[id]; ok {
		task.lastSeen = p.now()
		return
	}

	ctx, cancel := context.WithCancel(p.ctx)
	task := &pollTask{cancel: cancel, lastSeen: p.now()}
	p.tasks[id] = task

	p.wg.Add(1)
	go p.run(ctx, id, task)

	log.Debug().Str("id", id).Int("active", len(p.tasks)).Msg("playback poller started")
}

func (p *PlaybackPoller) Unwatch(id string) {
	p.mu.Lock()
	task, ok := p.tasks[id]
	if ok {
		delete(p.tasks, id)
	}
	p.mu.Unlock()

	if ok {
		task.cancel()
		log.Debug().Str("id", id).Msg("playback poller canceled")
	}
}

// Active returns the number of running loops.
func (p *PlaybackPoller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Stop cancels every loop and waits for them to return.
func (p *PlaybackPoller) Stop() {
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	p.tasks = make(map[string]*pollTask)
	p.mu.Unlock()

	log.Info().Msg("playback poller stopped")
}

func (p *PlaybackPoller) run(ctx context.Context, id string, task *pollTask) {
	defer p.wg.Done()
	defer p.remove(id, task)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if p.idle(task) {
			log.Debug().Str("id", id).Msg("playback poller idle, stopping")
			return
		}

		snapshot := p.refresher.Refresh(ctx, id)
		if snapshot != nil && snapshot.State == model.PlaybackNoSession {
			log.Debug().Str("id", id).Str("errorCode", snapshot.ErrorCode).Msg("session gone, stopping poller")
			return
		}
	}
}

func (p *PlaybackPoller) idle(task *pollTask) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Sub(task.lastSeen) >= p.idleTimeout
}

// remove forgets task unless a newer loop has replaced it.
func (p *PlaybackPoller) remove(id string, task *pollTask) {
	p.mu.Lock()
	if p.tasks[id] == task {
		delete(p.tasks, id)
	}
	p.mu.Unlock()
	task.cancel()
}
