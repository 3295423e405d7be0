//go:build linux
// +build linux

// File: sched/sched_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sched_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/asyncio"
	"github.com/momentics/hioload-fiber/control"
	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/sched"
)

func newScheduler(t *testing.T, workers int) *sched.Scheduler {
	t.Helper()
	cfg := sched.DefaultConfig()
	cfg.Workers = workers
	s, err := sched.New(cfg)
	require.NoError(t, err)
	return s
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition not reached within "+d.String())
}

// TestSingleWorkerSleep runs one fiber on one worker: append A, sleep
// 50ms, append B. The order is AB and the elapsed time respects the delay.
func TestSingleWorkerSleep(t *testing.T) {
	s := newScheduler(t, 1)
	defer s.Shutdown()

	// Single worker, single fiber: the fiber is the only writer.
	var out atomic.Value
	out.Store("")
	appendStr := func(p string) {
		out.Store(out.Load().(string) + p)
	}

	start := time.Now()
	var elapsed atomic.Int64
	var sl *asyncio.Sleep
	require.NoError(t, s.Spawn(fiber.New(func(f *fiber.Fib) fiber.Status {
		if sl == nil {
			appendStr("A")
			sl = asyncio.SleepFor(s.Reactor(), 50*time.Millisecond)
		}
		if sl.Await(f) == fiber.Pending {
			return fiber.Pending
		}
		appendStr("B")
		elapsed.Store(int64(time.Since(start)))
		return fiber.Done
	})))

	time.Sleep(70 * time.Millisecond)
	waitFor(t, time.Second, func() bool { return out.Load().(string) == "AB" })
	require.GreaterOrEqual(t, time.Duration(elapsed.Load()), 50*time.Millisecond)
	require.Less(t, time.Duration(elapsed.Load()), 500*time.Millisecond)
}

// TestFanOut spawns 10000 fibers across 4 workers; all run exactly once
// and all are destroyed (leak probe via the fiber counters).
func TestFanOut(t *testing.T) {
	s := newScheduler(t, 4)

	c0, d0 := fiber.Stats()
	var counter atomic.Int64
	const n = 10000
	for i := 0; i < n; i++ {
		require.NoError(t, s.Spawn(fiber.New(func(*fiber.Fib) fiber.Status {
			counter.Add(1)
			return fiber.Done
		})))
	}
	waitFor(t, 10*time.Second, func() bool { return counter.Load() == n })
	s.Shutdown()

	c1, d1 := fiber.Stats()
	require.Equal(t, uint64(n), c1-c0)
	require.Equal(t, c1-c0, d1-d0, "every spawned fiber must be destroyed")
	require.EqualValues(t, n, counter.Load())
}

// TestSpawnAwaitChain: parent awaits child; the child's completion
// transfers control straight back to the parent.
func TestSpawnAwaitChain(t *testing.T) {
	s := newScheduler(t, 2)
	defer s.Shutdown()

	var order atomic.Value
	order.Store("")
	done := make(chan struct{})

	var op fiber.SpawnAwait
	require.NoError(t, s.Spawn(fiber.New(func(f *fiber.Fib) fiber.Status {
		child := fiber.New(func(*fiber.Fib) fiber.Status {
			order.Store(order.Load().(string) + "child;")
			return fiber.Done
		})
		if op.Await(f, s, child) == fiber.Pending {
			return fiber.Pending
		}
		order.Store(order.Load().(string) + "parent;")
		close(done)
		return fiber.Done
	})))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("await chain did not complete")
	}
	require.Equal(t, "child;parent;", order.Load().(string))
}

// TestSubmitExecutor: the scheduler satisfies api.Executor.
func TestSubmitExecutor(t *testing.T) {
	s := newScheduler(t, 2)
	defer s.Shutdown()

	var ex api.Executor = s
	require.Equal(t, 2, ex.NumWorkers())

	var ran atomic.Bool
	require.NoError(t, ex.Submit(func() { ran.Store(true) }))
	waitFor(t, time.Second, ran.Load)
}

// TestSpawnAfterShutdown: submissions after Shutdown fail cleanly and the
// rejected fiber is still destroyed.
func TestSpawnAfterShutdown(t *testing.T) {
	s := newScheduler(t, 1)
	s.Shutdown()

	c0, d0 := fiber.Stats()
	err := s.Spawn(fiber.New(func(*fiber.Fib) fiber.Status { return fiber.Done }))
	require.ErrorIs(t, err, api.ErrSchedulerClosed)
	c1, d1 := fiber.Stats()
	require.Equal(t, c1-c0, d1-d0)
}

// TestPublishMetrics: scheduler counters land in a metrics registry.
func TestPublishMetrics(t *testing.T) {
	s := newScheduler(t, 2)
	defer s.Shutdown()

	var done atomic.Int64
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Go(func() { done.Add(1) }))
	}
	waitFor(t, 5*time.Second, func() bool { return done.Load() == 50 })

	mr := control.NewMetricsRegistry()
	s.PublishMetrics(mr)
	snap := mr.GetSnapshot()
	require.EqualValues(t, uint64(2), snap["sched.workers"])
	spawned, ok := snap["sched.spawned"].(uint64)
	require.True(t, ok)
	require.GreaterOrEqual(t, spawned, uint64(50))
}

// TestShutdownDrainsUnrun: fibers still queued at shutdown are destroyed
// without running.
func TestShutdownDrainsUnrun(t *testing.T) {
	s := newScheduler(t, 1)

	// A long chain of no-op fibers right before shutdown; some may run,
	// none may leak.
	c0, d0 := fiber.Stats()
	for i := 0; i < 1000; i++ {
		_ = s.Spawn(fiber.New(func(*fiber.Fib) fiber.Status { return fiber.Done }))
	}
	s.Shutdown()
	c1, d1 := fiber.Stats()
	require.Equal(t, c1-c0, d1-d0)
}
