//go:build linux
// +build linux

// File: sched/steal_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-package test: needs the localPopDisabled instrumentation hook and
// direct parker access.

package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-fiber/fiber"
)

func busySpin(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// TestStealUnderContention: worker 0 pushes 1000 short fibers into its
// local deque with local execution disabled; workers 1..3 can only obtain
// them by stealing. All complete, none twice, and the steal counter
// accounts for the bulk of them.
func TestStealUnderContention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 4
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("scheduler init: %v", err)
	}
	defer s.Shutdown()

	s.workers[0].localPopDisabled.Store(true)

	const n = 1000
	var runs [n]atomic.Int32
	var done atomic.Int64
	before := s.Metrics()

	seed := fiber.New(func(f *fiber.Fib) fiber.Status {
		w := f.Exec()
		if w.ID() != 0 {
			// Bounce through the global queue until worker 0 picks us up.
			s.SpawnAddr(f.AddrCopy())
			return fiber.Pending
		}
		for i := 0; i < n; i++ {
			idx := i
			w.ScheduleLocal(fiber.New(func(*fiber.Fib) fiber.Status {
				busySpin(10 * time.Microsecond)
				runs[idx].Add(1)
				done.Add(1)
				return fiber.Done
			}))
		}
		return fiber.Done
	})
	if err := s.Spawn(seed); err != nil {
		t.Fatalf("spawn seed: %v", err)
	}

	deadline := time.Now().Add(20 * time.Second)
	for done.Load() < n && time.Now().Before(deadline) {
		// Local pushes wake nobody; keep the thieves looking.
		for _, w := range s.workers[1:] {
			w.parker.Unpark()
		}
		time.Sleep(time.Millisecond)
	}
	if done.Load() != n {
		t.Fatalf("completed %d of %d fibers", done.Load(), n)
	}
	for i := range runs {
		if c := runs[i].Load(); c != 1 {
			t.Fatalf("fiber %d ran %d times", i, c)
		}
	}

	after := s.Metrics()
	stolen := after.StealHits - before.StealHits
	if stolen <= 750 {
		t.Fatalf("steal successes %d, want > 750", stolen)
	}
}

// TestWakeRoundRobin: repeated spawns park and wake different workers
// without losing submissions.
func TestWakeRoundRobin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 3
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("scheduler init: %v", err)
	}
	defer s.Shutdown()

	var count atomic.Int64
	const n = 300
	for i := 0; i < n; i++ {
		if err := s.Go(func() { count.Add(1) }); err != nil {
			t.Fatalf("go: %v", err)
		}
		if i%10 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	deadline := time.Now().Add(10 * time.Second)
	for count.Load() < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if count.Load() != n {
		t.Fatalf("completed %d of %d", count.Load(), n)
	}
}
