// File: core/queue/steal_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Chase-Lev work-stealing deque of fiber addresses. The owning worker
// pushes and pops at the bottom; any number of stealers take from the top.
// The circular buffer grows by publishing a doubled copy and retiring the
// old one through epoch reclamation, so a stealer that still holds the old
// buffer pointer reads intact slots until the grace period passes.
//
// top and bottom are kept on separate cache lines. All index operations go
// through sync/atomic, whose sequentially consistent ordering provides the
// Dekker-style barrier the pop/steal race requires: the owner's bottom
// store cannot reorder after its top load, so owner and stealer can never
// both win the last element.

package queue

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"

	"github.com/momentics/hioload-fiber/core/epoch"
	"github.com/momentics/hioload-fiber/fiber"
)

// DefaultLocalCapacity is the initial buffer size of a worker deque.
const DefaultLocalCapacity = 1024

type dqArray struct {
	buf  []unsafe.Pointer
	mask int64
}

func newArray(capacity int64) *dqArray {
	return &dqArray{
		buf:  make([]unsafe.Pointer, capacity),
		mask: capacity - 1,
	}
}

func (a *dqArray) put(i int64, p unsafe.Pointer) {
	atomic.StorePointer(&a.buf[i&a.mask], p)
}

func (a *dqArray) get(i int64) unsafe.Pointer {
	return atomic.LoadPointer(&a.buf[i&a.mask])
}

// grow returns a doubled copy holding the live range [t, b).
func (a *dqArray) grow(t, b int64) *dqArray {
	na := newArray(int64(len(a.buf)) * 2)
	for i := t; i < b; i++ {
		na.put(i, a.get(i))
	}
	return na
}

// retireArray clears a superseded buffer so its slots stop pinning fiber
// objects. Deferred through the epoch registry: running it while a stealer
// still reads the buffer would tear the read.
func retireArray(obj any) {
	a := obj.(*dqArray)
	for i := range a.buf {
		a.buf[i] = nil
	}
}

// StealQueue is a single-owner multiple-stealer deque. Push and Pop must
// only be called by the owning worker; Steal may be called from any thread
// that is inside an epoch critical section.
type StealQueue struct {
	top    atomic.Int64
	_      cpu.CacheLinePad
	bottom atomic.Int64
	_      cpu.CacheLinePad
	array  atomic.Pointer[dqArray]
	ep     *epoch.Participant
}

// NewStealQueue creates a deque with the given initial capacity, rounded
// up to a power of two, bound to the owner's epoch participant.
func NewStealQueue(capacity int, ep *epoch.Participant) *StealQueue {
	size := int64(1)
	for size < int64(capacity) {
		size <<= 1
	}
	q := &StealQueue{ep: ep}
	q.array.Store(newArray(size))
	return q
}

// Push appends an address at the bottom, growing the buffer if full.
func (q *StealQueue) Push(a fiber.Addr) {
	b := q.bottom.Load()
	t := q.top.Load()
	arr := q.array.Load()

	if b-t >= int64(len(arr.buf))-1 {
		grown := arr.grow(t, b)
		q.array.Store(grown)
		q.ep.Retire(arr, retireArray)
		arr = grown
	}
	arr.put(b, unsafe.Pointer(a))
	q.bottom.Store(b + 1)
}

// Pop removes the most recently pushed address. On the last element it
// races the stealers with a CAS on top; at most one side wins.
func (q *StealQueue) Pop() (fiber.Addr, bool) {
	b := q.bottom.Load() - 1
	arr := q.array.Load()
	q.bottom.Store(b)
	t := q.top.Load()

	if t > b {
		q.bottom.Store(b + 1)
		return nil, false
	}
	p := arr.get(b)
	if t == b {
		if !q.top.CompareAndSwap(t, t+1) {
			q.bottom.Store(b + 1)
			return nil, false
		}
		q.bottom.Store(b + 1)
		return fiber.Addr(p), true
	}
	return fiber.Addr(p), true
}

// Steal removes the oldest address. On a lost CAS it gives up rather than
// retrying; the caller's victim sweep moves on to the next peer.
func (q *StealQueue) Steal() (fiber.Addr, bool) {
	t := q.top.Load()
	b := q.bottom.Load()
	if t >= b {
		return nil, false
	}
	arr := q.array.Load()
	p := arr.get(t)
	if !q.top.CompareAndSwap(t, t+1) {
		return nil, false
	}
	return fiber.Addr(p), true
}

// Len returns the approximate number of queued addresses.
func (q *StealQueue) Len() int {
	b := q.bottom.Load()
	t := q.top.Load()
	if b < t {
		return 0
	}
	return int(b - t)
}

// Cap returns the current buffer capacity.
func (q *StealQueue) Cap() int {
	return len(q.array.Load().buf)
}
