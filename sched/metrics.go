// File: sched/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sched

import (
	"sync/atomic"

	"github.com/momentics/hioload-fiber/control"
)

type metrics struct {
	spawned       atomic.Uint64
	completed     atomic.Uint64
	stealAttempts atomic.Uint64
	stealHits     atomic.Uint64
	parks         atomic.Uint64
	busyRequeues  atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the scheduler counters.
type MetricsSnapshot struct {
	Spawned       uint64
	Completed     uint64
	StealAttempts uint64
	StealHits     uint64
	Parks         uint64
	BusyRequeues  uint64
}

// Metrics returns a snapshot of the scheduler's counters.
func (s *Scheduler) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Spawned:       s.metrics.spawned.Load(),
		Completed:     s.metrics.completed.Load(),
		StealAttempts: s.metrics.stealAttempts.Load(),
		StealHits:     s.metrics.stealHits.Load(),
		Parks:         s.metrics.parks.Load(),
		BusyRequeues:  s.metrics.busyRequeues.Load(),
	}
}

// PublishMetrics copies the current counters into a metrics registry.
func (s *Scheduler) PublishMetrics(mr *control.MetricsRegistry) {
	snap := s.Metrics()
	mr.Set("sched.spawned", snap.Spawned)
	mr.Set("sched.completed", snap.Completed)
	mr.Set("sched.steal_attempts", snap.StealAttempts)
	mr.Set("sched.steal_hits", snap.StealHits)
	mr.Set("sched.parks", snap.Parks)
	mr.Set("sched.busy_requeues", snap.BusyRequeues)
	mr.Set("sched.workers", uint64(len(s.workers)))
	mr.Set("sched.global_queue_len", uint64(s.gq.Len()))
	mr.Set("sched.epoch", s.reg.Epoch())
}
