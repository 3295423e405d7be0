// File: core/queue/global_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Mutex-guarded FIFO of fiber addresses: the overflow and external
// submission queue shared by all workers and the reactor. Correctness
// comes from the mutex; it is sized for correctness over performance.

package queue

import (
	"sync"

	eq "github.com/eapache/queue"

	"github.com/momentics/hioload-fiber/fiber"
)

// GlobalQueue is an unbounded FIFO of fiber addresses.
type GlobalQueue struct {
	mu sync.Mutex
	q  *eq.Queue
}

// NewGlobalQueue creates an empty queue.
func NewGlobalQueue() *GlobalQueue {
	return &GlobalQueue{q: eq.New()}
}

// PushAddr appends an address; the queue slot takes over its reference.
func (g *GlobalQueue) PushAddr(a fiber.Addr) {
	if a == nil {
		return
	}
	g.mu.Lock()
	g.q.Add(a)
	g.mu.Unlock()
}

// Pop removes the oldest address, transferring its reference to the caller.
func (g *GlobalQueue) Pop() (fiber.Addr, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.q.Length() == 0 {
		return nil, false
	}
	return g.q.Remove().(fiber.Addr), true
}

// Len returns the current queue length.
func (g *GlobalQueue) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.q.Length()
}
