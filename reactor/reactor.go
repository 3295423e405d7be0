// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral pieces of the I/O reactor: configuration and the timer
// min-heap. The readiness backend is platform-specific (epoll on Linux,
// see reactor_linux.go); other platforms get a stub that fails at
// construction.

package reactor

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-fiber/fiber"
)

// Config holds reactor construction options.
type Config struct {
	// MaxEvents bounds the number of readiness events drained per wait.
	MaxEvents int
	// Logger receives registration failures and loop errors.
	Logger zerolog.Logger
}

// DefaultConfig returns the default reactor configuration.
func DefaultConfig() Config {
	return Config{
		MaxEvents: 128,
		Logger:    zerolog.Nop(),
	}
}

type timerEntry struct {
	when time.Time
	addr fiber.Addr
}

// timerHeap is a min-heap of pending timers ordered by expiry.
type timerHeap []timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = timerEntry{}
	*h = old[:n-1]
	return e
}
