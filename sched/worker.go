// File: sched/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-thread worker loop: find a fiber (own deque, then global queue, then
// a steal sweep), resume it, or spin briefly and park. The epoch critical
// section covers only the find phase and is always released before
// parking; a parked worker holding the section open would stall
// reclamation for the whole scheduler.

package sched

import (
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"github.com/momentics/hioload-fiber/core/epoch"
	"github.com/momentics/hioload-fiber/core/park"
	"github.com/momentics/hioload-fiber/core/queue"
	"github.com/momentics/hioload-fiber/fiber"
)

type worker struct {
	id     int
	s      *Scheduler
	ldq    *queue.StealQueue
	ep     *epoch.Participant
	parker *park.Parker
	rng    *rand.Rand

	// localPopDisabled forces the worker to leave its own deque to
	// stealers. Test instrumentation only.
	localPopDisabled atomic.Bool
}

var _ fiber.Exec = (*worker)(nil)

func newWorker(id int, s *Scheduler) *worker {
	ep := s.reg.Register()
	return &worker{
		id:     id,
		s:      s,
		ldq:    queue.NewStealQueue(s.cfg.LocalQueueCapacity, ep),
		ep:     ep,
		parker: park.NewParker(),
		rng:    rand.New(rand.NewPCG(uint64(id)+1, rand.Uint64())),
	}
}

// ID implements fiber.Exec.
func (w *worker) ID() int { return w.id }

// ScheduleLocal pushes a fiber onto this worker's own deque. Must only be
// called from a poll step running on this worker.
func (w *worker) ScheduleLocal(f fiber.Fib) {
	a := f.Detach()
	if a == nil {
		return
	}
	w.s.metrics.spawned.Add(1)
	w.ldq.Push(a)
}

func (w *worker) run() {
	defer w.s.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.s.cfg.PinWorkers {
		if err := pinThread(w.id); err != nil {
			w.s.log.Warn().Int("worker", w.id).Err(err).Msg("cpu pinning failed")
		}
	}
	w.s.log.Debug().Int("worker", w.id).Msg("worker started")

	for w.s.running.Load() {
		w.runOnce()
	}
	w.s.log.Debug().Int("worker", w.id).Msg("worker stopped")
}

func (w *worker) runOnce() {
	var f fiber.Fib

	w.ep.Enter()
	if !w.localPopDisabled.Load() {
		if a, ok := w.ldq.Pop(); ok {
			f = fiber.Adopt(a)
		}
	}
	if f.Empty() {
		if a, ok := w.s.gq.Pop(); ok {
			f = fiber.Adopt(a)
		}
	}
	if f.Empty() {
		if a, ok := w.s.stealFor(w); ok {
			f = fiber.Adopt(a)
		}
	}
	w.ep.Exit()

	if !f.Empty() {
		w.execute(&f)
		return
	}

	for i := 0; i < w.s.cfg.SpinBeforePark; i++ {
		w.ep.Enter()
		a, ok := w.s.gq.Pop()
		w.ep.Exit()
		if ok {
			f = fiber.Adopt(a)
			w.execute(&f)
			return
		}
		runtime.Gosched()
	}
	if !w.s.running.Load() {
		return
	}
	w.s.metrics.parks.Add(1)
	w.parker.Park()
}

// execute resumes f and follows completion continuations iteratively, so
// an await chain of any depth runs at constant native stack depth.
func (w *worker) execute(f *fiber.Fib) {
	for {
		next, outcome := f.ResumeWith(w)
		switch outcome {
		case fiber.Completed:
			f.Release()
			w.s.metrics.completed.Add(1)
			if next == nil {
				return
			}
			*f = fiber.Adopt(next)
		case fiber.Busy:
			// Mid-resume on another thread (a continuation raced its
			// parent's suspension). Requeue instead of dropping the wakeup.
			w.s.metrics.busyRequeues.Add(1)
			w.s.SpawnAddr(f.Detach())
			return
		default: // Suspended, Dead
			f.Release()
			return
		}
	}
}
