// File: core/epoch/epoch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Epoch-based reclamation for lock-free readers. Retired objects are held
// in per-participant bins keyed by epoch mod 3 and destroyed only after the
// global epoch has advanced twice past the retire point, which guarantees
// every reader that could still observe them has left its critical section.

package epoch

import (
	"sync"
	"sync/atomic"
)

// advanceInterval is the number of retires between advancement attempts.
const advanceInterval = 64

type retiree struct {
	obj any
	del func(any)
}

// Registry is the shared epoch state for one scheduler instance. It owns
// the global epoch counter and the roster of participants.
type Registry struct {
	epoch atomic.Uint64

	mu      sync.Mutex
	parts   []*Participant
	orphans [3][]retiree
}

// Participant is the per-worker reclamation state. Enter/Exit/Retire must
// only be called by the owning thread; the registry may drain bins from
// any thread during advancement.
type Participant struct {
	reg      *Registry
	active   atomic.Bool
	observed atomic.Uint64

	binMu sync.Mutex
	bins  [3][]retiree
	ops   uint32
}

// NewRegistry creates an empty registry with epoch zero.
func NewRegistry() *Registry {
	return &Registry{}
}

// Epoch returns the current global epoch.
func (r *Registry) Epoch() uint64 {
	return r.epoch.Load()
}

// Register adds a participant to the roster.
func (r *Registry) Register() *Participant {
	p := &Participant{reg: r}
	r.mu.Lock()
	r.parts = append(r.parts, p)
	r.mu.Unlock()
	return p
}

// Deregister removes a participant. Its unreclaimed bins move into the
// registry's orphan bins so a departed worker can never stall advancement;
// the orphans drain on the following advances like any other bin.
func (r *Registry) Deregister(p *Participant) {
	r.mu.Lock()
	for i, rp := range r.parts {
		if rp == p {
			r.parts = append(r.parts[:i], r.parts[i+1:]...)
			break
		}
	}
	p.binMu.Lock()
	for i := range p.bins {
		r.orphans[i] = append(r.orphans[i], p.bins[i]...)
		p.bins[i] = nil
	}
	p.binMu.Unlock()
	r.mu.Unlock()
}

// Enter marks the participant active in the current epoch. The store of
// the active flag must not reorder before the epoch snapshot nor after any
// subsequent read of shared indices; sync/atomic stores are sequentially
// consistent, which gives exactly the required total order.
func (p *Participant) Enter() {
	p.observed.Store(p.reg.epoch.Load())
	p.active.Store(true)
}

// Exit leaves the critical section. A worker must call Exit before parking
// or blocking, otherwise the epoch cannot advance past it.
func (p *Participant) Exit() {
	p.active.Store(false)
}

// Retire defers destruction of obj until no participant can still observe
// it. del runs on whichever thread performs the eventual advancement.
func (p *Participant) Retire(obj any, del func(any)) {
	e := p.reg.epoch.Load()
	p.binMu.Lock()
	p.bins[e%3] = append(p.bins[e%3], retiree{obj: obj, del: del})
	p.binMu.Unlock()

	p.ops++
	if p.ops >= advanceInterval {
		p.ops = 0
		p.reg.TryAdvance()
	}
}

// TryAdvance attempts to move the global epoch forward by one. It is
// best-effort: if any active participant still observes an older epoch the
// attempt aborts. On success it drains the bin that was current two epochs
// ago across all participants and the orphan set.
func (r *Registry) TryAdvance() bool {
	e := r.epoch.Load()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch.Load() != e {
		return false
	}
	for _, p := range r.parts {
		if p.active.Load() && p.observed.Load() != e {
			return false
		}
	}

	next := e + 1
	r.epoch.Store(next)

	safe := (next + 1) % 3
	for _, p := range r.parts {
		p.binMu.Lock()
		bin := p.bins[safe]
		p.bins[safe] = nil
		p.binMu.Unlock()
		for _, rt := range bin {
			rt.del(rt.obj)
		}
	}
	bin := r.orphans[safe]
	r.orphans[safe] = nil
	for _, rt := range bin {
		rt.del(rt.obj)
	}
	return true
}
