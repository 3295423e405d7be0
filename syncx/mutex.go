// File: syncx/mutex.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cooperative mutex for fibers. Contended lockers suspend instead of
// blocking their worker thread. Unlock passes the baton: when waiters are
// queued, the lock stays held and the head waiter is resubmitted to the
// scheduler already owning it, which preserves FIFO order and keeps new
// arrivals from starving the queue.

package syncx

import (
	"sync"

	eq "github.com/eapache/queue"

	"github.com/momentics/hioload-fiber/fiber"
)

// Mutex is a FIFO-fair cooperative mutex.
type Mutex struct {
	sp fiber.Spawner

	mu      sync.Mutex
	locked  bool
	waiters *eq.Queue
}

// LockOp is the per-acquisition state a fiber threads through Lock. The
// zero value starts a fresh acquisition.
type LockOp struct {
	enqueued bool
}

// NewMutex creates an unlocked mutex waking waiters through sp.
func NewMutex(sp fiber.Spawner) *Mutex {
	return &Mutex{sp: sp, waiters: eq.New()}
}

// Lock acquires the mutex. Pending means the fiber was enqueued and
// suspended; when it is resumed and re-enters Lock with the same op, it
// already owns the lock (baton passing) and gets Done.
//
// The state check happens under the internal mutex, so the window in which
// an unlock slips between a failed fast path and the enqueue cannot occur.
func (m *Mutex) Lock(f *fiber.Fib, op *LockOp) fiber.Status {
	m.mu.Lock()
	if op.enqueued {
		m.mu.Unlock()
		return fiber.Done
	}
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return fiber.Done
	}
	op.enqueued = true
	m.waiters.Add(f.AddrCopy())
	m.mu.Unlock()
	return fiber.Pending
}

// Unlock releases the mutex or hands it to the head waiter.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	if m.waiters.Length() > 0 {
		a := m.waiters.Remove().(fiber.Addr)
		m.mu.Unlock()
		m.sp.SpawnAddr(a)
		return
	}
	m.locked = false
	m.mu.Unlock()
}

// Locked reports whether the mutex is currently held.
func (m *Mutex) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}
