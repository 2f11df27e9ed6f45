// Package reaper reclaims locks held by agents that have gone quiet,
// both on its own ticker and on demand from the dispatcher.
package reaper

import (
	"context"
	"log"
	"time"

	"github.com/fleetforge/coordinator/internal/metrics"
	"github.com/fleetforge/coordinator/internal/store"
)

// DefaultStaleThreshold is how long a lock holder may go unseen before
// its lock is reclaimed.
const DefaultStaleThreshold = 30 * time.Minute

// DefaultSweepInterval is the background loop's own cadence. The
// dispatcher also calls Reap directly at the start of every next_task
// call, so this ticker is a backstop for tasks nobody is polling for.
const DefaultSweepInterval = 60 * time.Second

type Reaper struct {
	store          store.Store
	staleThreshold time.Duration
	sweepInterval  time.Duration
	metrics        *metrics.Registry
}

func New(s store.Store, staleThreshold, sweepInterval time.Duration) *Reaper {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Reaper{store: s, staleThreshold: staleThreshold, sweepInterval: sweepInterval}
}

// SetMetrics attaches a metrics registry. Optional; Reap and Run work
// fine with no registry attached, which keeps existing tests untouched.
func (r *Reaper) SetMetrics(m *metrics.Registry) {
	r.metrics = m
}

// Reap sweeps once and returns the number of locks reclaimed. Safe to
// call concurrently with the background loop; ReleaseLock is a plain
// idempotent update.
func (r *Reaper) Reap(now time.Time) (int, error) {
	cutoff := now.Add(-r.staleThreshold)
	stale, err := r.store.ListStaleLocks(cutoff)
	if err != nil {
		return 0, err
	}
	for _, task := range stale {
		if err := r.store.ReleaseLock(task.ID); err != nil {
			return 0, err
		}
	}
	if r.metrics != nil && len(stale) > 0 {
		r.metrics.TasksReaped.Add(float64(len(stale)))
		r.metrics.LocksReleased.Add(float64(len(stale)))
	}
	return len(stale), nil
}

// Run starts the background sweep loop, stopping when ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	log.Println("[REAPER] lock reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[REAPER] lock reaper stopped")
			return
		case <-ticker.C:
			count, err := r.Reap(time.Now())
			if err != nil {
				log.Printf("[REAPER] sweep error: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("[REAPER] reclaimed %d stale lock(s)", count)
			}
		}
	}
}
