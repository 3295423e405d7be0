// File: core/park/parker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Three-state parker for a single worker thread. A notification that
// arrives before Park makes Park return immediately; consecutive
// notifications coalesce into one.

package park

import "sync/atomic"

const (
	stateEmpty int32 = iota
	stateParked
	stateNotified
)

// Parker suspends exactly one owning thread. Park must only be called by
// the owner; Unpark may be called from any thread.
type Parker struct {
	state atomic.Int32
	sema  chan struct{}
}

// NewParker returns a Parker in the empty state.
func NewParker() *Parker {
	return &Parker{sema: make(chan struct{}, 1)}
}

// Park blocks until another thread calls Unpark. If a notification is
// already pending, Park consumes it and returns without blocking.
func (p *Parker) Park() {
	if p.state.CompareAndSwap(stateEmpty, stateParked) {
		<-p.sema
	}
	p.state.Store(stateEmpty)
}

// Unpark releases the owner if parked, or stores a notification for the
// next Park otherwise.
func (p *Parker) Unpark() {
	if p.state.Swap(stateNotified) == stateParked {
		select {
		case p.sema <- struct{}{}:
		default:
		}
	}
}
