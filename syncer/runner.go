package syncer

import (
	"context"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Workers bounds cross-space concurrency. Zero means 4.
	Workers int
	Logger  zerolog.Logger
	// OnReport, when set, receives the result of every completed cycle.
	OnReport func(Report, error)
}

// Runner schedules sync cycles across spaces on a bounded worker pool.
//
// Submissions for distinct spaces run concurrently up to the worker bound.
// Submissions for the same space coalesce: while a cycle for a space is
// running or queued, further submissions mark it dirty and it re-runs once
// instead of piling up.
type Runner struct {
	engine   *Engine
	pool     *workerpool.WorkerPool
	log      zerolog.Logger
	onReport func(Report, error)

	mu     sync.Mutex
	active map[string]bool
	dirty  map[string]bool
}

func NewRunner(engine *Engine, cfg RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		engine:   engine,
		pool:     workerpool.New(workers),
		log:      cfg.Logger.With().Str("component", "sync-runner").Logger(),
		onReport: cfg.OnReport,
		active:   make(map[string]bool),
		dirty:    make(map[string]bool),
	}
}

// Submit schedules a sync cycle for each named space.
func (r *Runner) Submit(ctx context.Context, spaceIDs ...string) {
	for _, spaceID := range spaceIDs {
		r.submitOne(ctx, spaceID)
	}
}

func (r *Runner) submitOne(ctx context.Context, spaceID string) {
	r.mu.Lock()
	if r.active[spaceID] {
		r.dirty[spaceID] = true
		r.mu.Unlock()
		return
	}
	r.active[spaceID] = true
	r.mu.Unlock()

	r.pool.Submit(func() {
		r.run(ctx, spaceID)
	})
}

func (r *Runner) run(ctx context.Context, spaceID string) {
	for {
		if ctx.Err() != nil {
			r.finish(spaceID, false)
			return
		}

		rep, err := r.engine.SyncSpace(ctx, spaceID)
		if err != nil {
			r.log.Warn().Err(err).Str("space", spaceID).Msg("sync cycle failed")
		}
		if r.onReport != nil {
			r.onReport(rep, err)
		}

		if !r.finish(spaceID, true) {
			return
		}
	}
}

// finish clears the active mark unless the space was resubmitted while
// running. It reports whether another cycle should run.
func (r *Runner) finish(spaceID string, allowRerun bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if allowRerun && r.dirty[spaceID] {
		r.dirty[spaceID] = false
		return true
	}
	delete(r.dirty, spaceID)
	delete(r.active, spaceID)
	return false
}

// StopWait blocks until all queued cycles finish, then stops the pool.
func (r *Runner) StopWait() {
	r.pool.StopWait()
}
