// File: sched/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler: owns the worker pool, the shared global queue, the epoch
// registry and exactly one reactor. Spawn surrenders a fiber handle to the
// runtime; the address travels through the global queue and one worker is
// woken round-robin to pick it up.

package sched

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/core/epoch"
	"github.com/momentics/hioload-fiber/core/queue"
	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/reactor"
)

// Scheduler multiplexes fibers onto a fixed pool of worker threads.
type Scheduler struct {
	cfg Config
	log zerolog.Logger

	gq      *queue.GlobalQueue
	reg     *epoch.Registry
	rx      *reactor.Reactor
	workers []*worker

	next    atomic.Uint64
	running atomic.Bool
	wg      sync.WaitGroup

	metrics metrics
}

var _ api.Executor = (*Scheduler)(nil)

// New constructs a scheduler with cfg.Workers worker threads and starts
// the reactor. A nil cfg selects DefaultConfig.
func New(cfg *Config) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()

	s := &Scheduler{
		cfg: *cfg,
		log: cfg.Logger,
		gq:  queue.NewGlobalQueue(),
		reg: epoch.NewRegistry(),
	}
	rx, err := reactor.New(s, reactor.Config{
		MaxEvents: cfg.ReactorMaxEvents,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.rx = rx

	s.workers = make([]*worker, cfg.Workers)
	for i := range s.workers {
		s.workers[i] = newWorker(i, s)
	}

	s.running.Store(true)
	rx.Start()
	for _, w := range s.workers {
		s.wg.Add(1)
		go w.run()
	}
	s.log.Debug().Int("workers", cfg.Workers).Msg("scheduler started")
	return s, nil
}

// Spawn submits a suspended fiber; ownership transfers into the runtime.
// The handle is consumed whether or not the submission succeeds.
func (s *Scheduler) Spawn(f fiber.Fib) error {
	a := f.Detach()
	if a == nil {
		return api.ErrInvalidArgument
	}
	if !s.running.Load() {
		fiber.ReleaseAddr(a)
		return api.ErrSchedulerClosed
	}
	s.metrics.spawned.Add(1)
	s.gq.PushAddr(a)
	s.wakeOne()
	return nil
}

// SpawnAddr re-enqueues a detached fiber address. Used by the reactor and
// the cooperative sync primitives to hand fibers back after a wakeup.
// During shutdown the address still lands in the global queue so the final
// drain reclaims it.
func (s *Scheduler) SpawnAddr(a fiber.Addr) {
	if a == nil {
		return
	}
	s.gq.PushAddr(a)
	s.wakeOne()
}

// Go runs fn as a single-step fiber.
func (s *Scheduler) Go(fn func()) error {
	return s.Spawn(fiber.New(func(*fiber.Fib) fiber.Status {
		fn()
		return fiber.Done
	}))
}

// Submit implements api.Executor.
func (s *Scheduler) Submit(task func()) error { return s.Go(task) }

// NumWorkers implements api.Executor.
func (s *Scheduler) NumWorkers() int { return len(s.workers) }

// Reactor returns the scheduler's reactor, used by awaitable constructors
// to arm readiness registrations and timers.
func (s *Scheduler) Reactor() *reactor.Reactor { return s.rx }

// Shutdown stops the reactor, wakes and joins every worker, destroys any
// fibers left in the global queue and deregisters all epoch participants.
func (s *Scheduler) Shutdown() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.rx.Stop()
	for _, w := range s.workers {
		w.parker.Unpark()
	}
	s.wg.Wait()

	for {
		a, ok := s.gq.Pop()
		if !ok {
			break
		}
		fiber.ReleaseAddr(a)
	}
	for _, w := range s.workers {
		s.reg.Deregister(w.ep)
	}
	s.log.Debug().Msg("scheduler stopped")
}

func (s *Scheduler) wakeOne() {
	n := uint64(len(s.workers))
	if n == 0 {
		return
	}
	s.workers[s.next.Add(1)%n].parker.Unpark()
}

// stealFor sweeps every peer once, starting from a uniformly random
// victim. Sequential victim choice would make every starved worker hammer
// the same first non-empty peer; the random start spreads them out.
func (s *Scheduler) stealFor(w *worker) (fiber.Addr, bool) {
	n := len(s.workers)
	if n <= 1 {
		return nil, false
	}
	start := w.rng.IntN(n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if idx == w.id {
			continue
		}
		s.metrics.stealAttempts.Add(1)
		if a, ok := s.workers[idx].ldq.Steal(); ok {
			s.metrics.stealHits.Add(1)
			return a, true
		}
	}
	return nil, false
}
