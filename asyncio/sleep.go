// File: asyncio/sleep.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package asyncio

import (
	"time"

	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/reactor"
)

// Sleep is a timer awaitable. It arms once; resumption means the deadline
// passed on the monotonic clock.
type Sleep struct {
	rx       *reactor.Reactor
	d        time.Duration
	deadline time.Time
	armed    bool
}

// SleepFor returns an awaitable that resumes the fiber no earlier than d
// from the first Await.
func SleepFor(rx *reactor.Reactor, d time.Duration) *Sleep {
	return &Sleep{rx: rx, d: d}
}

// Await arms the timer on first entry and completes on re-entry.
func (sl *Sleep) Await(f *fiber.Fib) fiber.Status {
	if !sl.armed {
		sl.armed = true
		sl.deadline = time.Now().Add(sl.d)
		sl.rx.AddTimer(sl.deadline, f.AddrCopy())
		return fiber.Pending
	}
	return fiber.Done
}
