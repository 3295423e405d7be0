// File: fiber/fiber.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reference-counted handle to a suspendable computation. A fiber is
// created suspended, resumed by worker threads until its poll step reports
// completion, and destroyed exactly once when the last reference drops.
//
// The handle separates ownership transfer from reference counting: Detach
// exports the fiber's address without touching the count (the reference
// moves into the queue slot that receives the address) and Adopt reclaims
// it the same way. Expressing a queue crossing as increment-then-decrement
// would open a window in which the count hits zero while the address is
// still in flight; these primitives close it. AddrCopy is the counted
// variant used when a second holder (the reactor) needs its own reference.

package fiber

import (
	"sync/atomic"
	"unsafe"

	"github.com/momentics/hioload-fiber/pool"
)

// Status reported by a poll step.
type Status uint8

const (
	// Pending means the fiber suspended after arranging its own wakeup
	// (reactor registration, timer, or waiter queue).
	Pending Status = iota
	// Done means the computation reached its completion point.
	Done
)

// Outcome of a single Resume call, consumed by the worker loop.
type Outcome uint8

const (
	// Suspended: the fiber yielded; its remaining references are held by
	// whatever wakeup it arranged.
	Suspended Outcome = iota
	// Completed: the fiber finished. Resume may hand back a continuation
	// address whose reference transfers to the caller.
	Completed
	// Busy: another thread is mid-resume. The caller should requeue the
	// address rather than drop the wakeup.
	Busy
	// Dead: empty handle or already-finished fiber.
	Dead
)

// Addr is the opaque address of a fiber: the token stored in run queues
// and registered with the reactor. Each Addr in circulation accounts for
// exactly one reference.
type Addr unsafe.Pointer

// PollFunc advances a fiber to its next suspension point. It returns
// Pending after arranging a wakeup, or Done at the completion point.
type PollFunc func(f *Fib) Status

// Exec is the execution context a worker exposes to the fiber it is
// currently resuming. ScheduleLocal must only be called from inside the
// poll step, on the resuming worker's own thread.
type Exec interface {
	ScheduleLocal(f Fib)
	ID() int
}

// Spawner resubmits a detached fiber address to a scheduler. It is the
// seam through which the reactor and the cooperative sync primitives hand
// fibers back without importing the scheduler.
type Spawner interface {
	SpawnAddr(a Addr)
}

type object struct {
	refs     atomic.Int64
	running  atomic.Bool
	finished atomic.Bool
	poll     PollFunc
	cont     Addr
	exec     Exec
}

var objects = pool.NewSyncPool(func() *object { return new(object) })

var (
	statCreated   atomic.Uint64
	statDestroyed atomic.Uint64
)

// Stats reports the total number of fibers created and destroyed since
// process start. The difference is the number of live fibers; tests use
// the deltas as a leak probe.
func Stats() (created, destroyed uint64) {
	return statCreated.Load(), statDestroyed.Load()
}

// Fib is a counted handle to a fiber object. The zero value is empty.
// Handles are not goroutine-safe; share the address, not the handle.
type Fib struct {
	o *object
}

// New creates a fiber in the suspended state holding one reference. The
// poll step does not run until a worker resumes the fiber, so the caller
// of spawn can never be dragged into executing it synchronously.
func New(poll PollFunc) Fib {
	o := objects.Get()
	o.refs.Store(1)
	o.running.Store(false)
	o.finished.Store(false)
	o.poll = poll
	o.cont = nil
	o.exec = nil
	statCreated.Add(1)
	return Fib{o: o}
}

// Empty reports whether the handle refers to no fiber.
func (f *Fib) Empty() bool { return f.o == nil }

// Done reports whether the handle is empty or the computation finished.
func (f *Fib) Done() bool {
	return f.o == nil || f.o.finished.Load()
}

// Clone returns a second counted handle to the same fiber.
func (f *Fib) Clone() Fib {
	if f.o == nil {
		return Fib{}
	}
	f.o.refs.Add(1)
	return Fib{o: f.o}
}

// Release drops this handle's reference and empties the handle. The
// underlying object is destroyed exactly when the count reaches zero.
func (f *Fib) Release() {
	o := f.o
	if o == nil {
		return
	}
	f.o = nil
	if o.refs.Add(-1) == 0 {
		o.destroy()
	}
}

// Detach exports the fiber's address and empties the handle without
// changing the reference count: the single reference this handle held now
// travels with the returned address.
func (f *Fib) Detach() Addr {
	o := f.o
	if o == nil {
		return nil
	}
	f.o = nil
	return Addr(unsafe.Pointer(o))
}

// AddrCopy exports the fiber's address with an additional reference for
// the receiver. The handle remains valid.
func (f *Fib) AddrCopy() Addr {
	if f.o == nil {
		return nil
	}
	f.o.refs.Add(1)
	return Addr(unsafe.Pointer(f.o))
}

// Adopt wraps an address back into a handle without changing the count,
// consuming the reference the address carried.
func Adopt(a Addr) Fib {
	if a == nil {
		return Fib{}
	}
	return Fib{o: (*object)(unsafe.Pointer(a))}
}

// ReleaseAddr drops the reference carried by a raw address.
func ReleaseAddr(a Addr) {
	f := Adopt(a)
	f.Release()
}

// SetContinuation installs the fiber to transfer control to at the
// completion point. The address's reference is consumed: it is either
// handed to the worker on completion or released with this fiber.
func (f *Fib) SetContinuation(a Addr) {
	if f.o == nil {
		ReleaseAddr(a)
		return
	}
	f.o.cont = a
}

// Exec returns the execution context of the worker currently resuming the
// fiber. Only valid inside the poll step.
func (f *Fib) Exec() Exec {
	if f.o == nil {
		return nil
	}
	return f.o.exec
}

// Resume runs the fiber until its next suspension point with no execution
// context bound.
func (f *Fib) Resume() (Addr, Outcome) {
	return f.ResumeWith(nil)
}

// ResumeWith runs the fiber until its next suspension point, exposing e to
// the poll step. The is_running flag guarantees at-most-one resumption at
// any instant even if two threads race on the same address; the loser
// observes Busy and requeues. The exec binding happens only after winning
// the flag, so a losing racer never touches state the running poll reads.
//
// On Completed the returned address, if non-nil, is the continuation whose
// reference transfers to the caller: the worker loop resumes it directly,
// which keeps await chains at constant native stack depth.
func (f *Fib) ResumeWith(e Exec) (Addr, Outcome) {
	o := f.o
	if o == nil || o.finished.Load() {
		return nil, Dead
	}
	if !o.running.CompareAndSwap(false, true) {
		return nil, Busy
	}
	if o.finished.Load() {
		o.running.Store(false)
		return nil, Dead
	}
	o.exec = e
	st := o.poll(f)
	o.exec = nil
	if st == Done {
		o.finished.Store(true)
		next := o.cont
		o.cont = nil
		o.running.Store(false)
		return next, Completed
	}
	o.running.Store(false)
	return nil, Suspended
}

func (o *object) destroy() {
	if o.cont != nil {
		ReleaseAddr(o.cont)
		o.cont = nil
	}
	o.poll = nil
	o.exec = nil
	statDestroyed.Add(1)
	objects.Put(o)
}
