//go:build linux
// +build linux

// File: asyncio/fd_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package asyncio_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fiber/asyncio"
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

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	return fds[0], fds[1]
}

// TestReadEOFDelivery: a reader suspended on an async read wakes when the
// peer closes, observes EOF, completes, and is destroyed. The fiber
// counters act as the destruction probe.
func TestReadEOFDelivery(t *testing.T) {
	s := newScheduler(t, 2)
	defer s.Shutdown()

	rd, wr := socketPair(t)
	x := asyncio.NewFD(rd, s.Reactor())
	defer x.Close()

	c0, d0 := fiber.Stats()
	var result atomic.Int64
	result.Store(-2)
	done := make(chan struct{})

	buf := make([]byte, 64)
	var readErr atomic.Value
	require.NoError(t, s.Spawn(fiber.New(func(f *fiber.Fib) fiber.Status {
		n, st, err := x.Read(f, buf)
		if st == fiber.Pending {
			return fiber.Pending
		}
		if err != nil {
			readErr.Store(err)
		}
		result.Store(int64(n))
		close(done)
		return fiber.Done
	})))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, unix.Close(wr))

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("reader fiber not woken within 100ms of peer close")
	}
	require.Nil(t, readErr.Load())
	require.EqualValues(t, 0, result.Load(), "read at EOF must return 0")

	// Destruction probe: the reader fiber and its reactor reference are
	// both released shortly after completion.
	deadline := time.Now().Add(time.Second)
	for {
		c1, d1 := fiber.Stats()
		if c1-c0 == d1-d0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("fiber leak: created %d destroyed %d", c1-c0, d1-d0)
		}
		time.Sleep(time.Millisecond)
	}
}

// TestReadFastPath: available data completes the awaitable without a
// suspension.
func TestReadFastPath(t *testing.T) {
	s := newScheduler(t, 1)
	defer s.Shutdown()

	rd, wr := socketPair(t)
	defer unix.Close(wr)
	x := asyncio.NewFD(rd, s.Reactor())
	defer x.Close()

	_, err := unix.Write(wr, []byte("ping"))
	require.NoError(t, err)

	var got atomic.Value
	done := make(chan struct{})
	buf := make([]byte, 64)
	require.NoError(t, s.Spawn(fiber.New(func(f *fiber.Fib) fiber.Status {
		n, st, err := x.Read(f, buf)
		if st == fiber.Pending {
			return fiber.Pending
		}
		if err != nil {
			t.Errorf("read: %v", err)
			close(done)
			return fiber.Done
		}
		got.Store(string(buf[:n]))
		close(done)
		return fiber.Done
	})))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fast-path read did not complete")
	}
	require.Equal(t, "ping", got.Load())
}

// TestWriteBackpressure: a full send buffer suspends the writer on a
// write registration; a draining peer lets it finish the payload.
func TestWriteBackpressure(t *testing.T) {
	s := newScheduler(t, 2)
	defer s.Shutdown()

	a, b := socketPair(t)
	// Shrink buffers so backpressure hits quickly.
	_ = unix.SetsockoptInt(a, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096)
	_ = unix.SetsockoptInt(b, unix.SOL_SOCKET, unix.SO_RCVBUF, 4096)
	x := asyncio.NewFD(a, s.Reactor())
	defer x.Close()

	const total = 1 << 20
	var sent atomic.Int64
	done := make(chan struct{})
	chunk := make([]byte, 32*1024)

	require.NoError(t, s.Spawn(fiber.New(func(f *fiber.Fib) fiber.Status {
		for sent.Load() < total {
			remain := total - sent.Load()
			out := chunk
			if remain < int64(len(out)) {
				out = out[:remain]
			}
			n, st, err := x.Write(f, out)
			if st == fiber.Pending {
				return fiber.Pending
			}
			if err != nil {
				t.Errorf("write: %v", err)
				return fiber.Done
			}
			sent.Add(int64(n))
		}
		close(done)
		return fiber.Done
	})))

	// Blocking drain on the peer from a plain goroutine.
	var received atomic.Int64
	go func() {
		buf := make([]byte, 64*1024)
		for received.Load() < total {
			n, err := unix.Read(b, buf)
			if n > 0 {
				received.Add(int64(n))
			}
			if err != nil && err != unix.EINTR {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("writer stalled: sent %d of %d", sent.Load(), total)
	}
	deadline := time.Now().Add(5 * time.Second)
	for received.Load() < total && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.EqualValues(t, total, received.Load())
	unix.Close(b)
}

// TestSleepFor: the awaitable resumes no earlier than the delay.
func TestSleepFor(t *testing.T) {
	s := newScheduler(t, 1)
	defer s.Shutdown()

	start := time.Now()
	done := make(chan time.Duration, 1)
	var sl *asyncio.Sleep
	require.NoError(t, s.Spawn(fiber.New(func(f *fiber.Fib) fiber.Status {
		if sl == nil {
			sl = asyncio.SleepFor(s.Reactor(), 30*time.Millisecond)
		}
		if sl.Await(f) == fiber.Pending {
			return fiber.Pending
		}
		done <- time.Since(start)
		return fiber.Done
	})))

	select {
	case elapsed := <-done:
		require.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("sleep never completed")
	}
}
