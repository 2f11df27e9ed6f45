// Package metrics exposes the coordinator's prometheus collectors:
// dispatch latency, lock conflicts, reap counts, and health-probe
// transitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector the coordinator registers, so
// cmd/coordinatord can wire one value into every component that emits
// metrics and expose it once at /metrics.
type Registry struct {
	DispatchLatency   prometheus.Histogram
	DispatchWaitCount prometheus.Counter
	LockConflicts     prometheus.Counter
	LocksReleased     prometheus.Counter
	TasksReaped       prometheus.Counter
	ProbeUp           prometheus.Counter
	ProbeDown         prometheus.Counter
	ProbeTransitions  prometheus.Counter
}

// NewRegistry constructs a Registry and registers every collector
// against reg. Pass prometheus.NewRegistry() in tests to avoid
// colliding with the default global registry across test runs.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		DispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coordinator_dispatch_wait_seconds",
			Help:    "Time next_task spent waiting before returning a task or a waiting token.",
			Buckets: prometheus.DefBuckets,
		}),
		DispatchWaitCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_dispatch_waiting_token_total",
			Help: "Number of next_task calls that returned a waiting token after timing out.",
		}),
		LockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_lock_conflicts_total",
			Help: "Number of claim_task calls rejected with a conflict (task already locked, or agent already holding a task).",
		}),
		LocksReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_locks_released_total",
			Help: "Number of locks released by the lock reaper; releases on a status transition are not counted.",
		}),
		TasksReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_locks_reaped_total",
			Help: "Number of stale locks reclaimed by the lock reaper.",
		}),
		ProbeUp: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_health_probe_up_total",
			Help: "Number of successful health probe results.",
		}),
		ProbeDown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_health_probe_down_total",
			Help: "Number of failed health probe results.",
		}),
		ProbeTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_health_probe_transitions_total",
			Help: "Number of UP<->DOWN status transitions observed across all probed services.",
		}),
	}

	reg.MustRegister(
		r.DispatchLatency,
		r.DispatchWaitCount,
		r.LockConflicts,
		r.LocksReleased,
		r.TasksReaped,
		r.ProbeUp,
		r.ProbeDown,
		r.ProbeTransitions,
	)
	return r
}
