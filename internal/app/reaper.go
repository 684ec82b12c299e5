package app

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/metrics"
	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultReapInterval = time.Hour
	reapTimeout         = 30 * time.Second
)

// ReapLock lets one instance out of several reap per interval. Deleting expired slides
// twice is harmless, so a lock error falls back to reaping anyway.
type ReapLock interface {
	TryAcquire(ctx context.Context) (bool, error)
}

// Reaper periodically deletes expired slides from the store. Totems are not notified:
// expired slides already drop out of every published frame.
type Reaper struct {
	repo     domain.SlideRepository
	clock    clockwork.Clock
	interval time.Duration
	metrics  *metrics.StoreMetrics
	lock     ReapLock
	running  atomic.Bool
}

func NewReaper(repo domain.SlideRepository, clock clockwork.Clock, interval time.Duration, m *metrics.StoreMetrics) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if m == nil {
		m = metrics.NewStoreMetrics(nil)
	}
	return &Reaper{repo: repo, clock: clock, interval: interval, metrics: m}
}

// WithLock makes the reaper skip ticks for which lock is held by another instance.
func (r *Reaper) WithLock(lock ReapLock) *Reaper {
	r.lock = lock
	return r
}

// Run deletes expired slides once per interval until ctx is cancelled. The first pass
// happens one interval after start. A second concurrent Run returns at once.
func (r *Reaper) Run(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		slog.Warn("Expiry reaper already running, ignoring second start")
		return
	}
	defer r.running.Store(false)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("Expiry reaper started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Expiry reaper stopped")
			return
		case <-ticker.Chan():
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.ReapRuns.WithLabelValues("panic").Inc()
			slog.Error("Expiry reaper panicked", "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, reapTimeout)
	defer cancel()

	if r.lock != nil {
		acquired, err := r.lock.TryAcquire(ctx)
		if err != nil {
			slog.Warn("Reap lock unavailable, reaping locally", "error", err)
		} else if !acquired {
			r.metrics.ReapRuns.WithLabelValues("skipped").Inc()
			slog.Debug("Another instance holds the reap lock, skipping")
			return
		}
	}

	now := r.clock.Now()
	deleted, err := r.repo.DeleteExpired(ctx, now)
	if err != nil {
		r.metrics.ReapRuns.WithLabelValues("error").Inc()
		slog.Error("Failed to delete expired slides", "error", err)
		return
	}

	r.metrics.ReapRuns.WithLabelValues("ok").Inc()
	r.metrics.SlidesReaped.Add(float64(deleted))
	if deleted > 0 {
		slog.Info("Deleted expired slides", "count", deleted, "cutoff", now)
		return
	}
	slog.Debug("No expired slides to delete", "cutoff", now)
}
