// Package dispatch implements the long-poll next_task operation: reap
// stale locks, query eligibility on a short interval until a task turns
// up or the caller's timeout elapses, and fall back to a synthetic
// waiting token.
package dispatch

import (
	"context"
	"time"

	"github.com/fleetforge/coordinator/internal/eligibility"
	"github.com/fleetforge/coordinator/internal/metrics"
	"github.com/fleetforge/coordinator/internal/reaper"
	"github.com/fleetforge/coordinator/internal/types"
)

// DefaultPollInterval is how often the loop re-checks eligibility while
// waiting for a task to appear.
const DefaultPollInterval = 5 * time.Second

// DefaultTimeout is next_task's own wait budget absent caller override.
const DefaultTimeout = 180 * time.Second

// DefaultWaitingPollHint is the poll_interval carried on a WaitingToken.
const DefaultWaitingPollHint = 300

type Dispatcher struct {
	eligibility  *eligibility.Resolver
	reaper       *reaper.Reaper
	pollInterval time.Duration
	metrics      *metrics.Registry
}

func New(e *eligibility.Resolver, r *reaper.Reaper, pollInterval time.Duration) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Dispatcher{eligibility: e, reaper: r, pollInterval: pollInterval}
}

// SetMetrics attaches a metrics registry. Optional.
func (d *Dispatcher) SetMetrics(m *metrics.Registry) {
	d.metrics = m
}

// NextTask returns the oldest eligible task for (role, level) within
// projectID, or a WaitingToken once timeout elapses with nothing
// available. It never locks the returned task; that is a separate,
// explicit step. Responsive to ctx cancellation between sleeps.
func (d *Dispatcher) NextTask(ctx context.Context, projectID int64, role types.AgentRole, level types.SkillLevel, callerID string, timeout time.Duration) (*types.Task, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()
	deadline := start.Add(timeout)

	if _, err := d.reaper.Reap(time.Now()); err != nil {
		return nil, err
	}

	for {
		candidates, err := d.eligibility.Eligible(projectID, role, level)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			if d.metrics != nil {
				d.metrics.DispatchLatency.Observe(time.Since(start).Seconds())
			}
			return candidates[0], nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if d.metrics != nil {
				d.metrics.DispatchLatency.Observe(time.Since(start).Seconds())
				d.metrics.DispatchWaitCount.Inc()
			}
			return types.WaitingToken(role, callerID, DefaultWaitingPollHint), nil
		}

		sleep := d.pollInterval
		if remaining < sleep {
			sleep = remaining
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}
