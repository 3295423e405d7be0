// File: fiber/await.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fiber

// SpawnAwait suspends the calling fiber until a child fiber completes.
// The child receives the parent's address as its continuation, so when it
// reaches its completion point the worker resumes the parent directly
// (symmetric transfer) instead of going back through the run queues.
//
// Usage inside a poll step:
//
//	if op.Await(f, sched, child) == fiber.Pending {
//		return fiber.Pending
//	}
//	// child has completed
type SpawnAwait struct {
	started bool
}

// Await spawns child on the first call and suspends the parent; on
// re-entry the child has completed. The child handle is consumed.
func (op *SpawnAwait) Await(f *Fib, sp Spawner, child Fib) Status {
	if op.started {
		child.Release()
		return Done
	}
	op.started = true
	child.SetContinuation(f.AddrCopy())
	sp.SpawnAddr(child.Detach())
	return Pending
}
