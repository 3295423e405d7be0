// Package api
// Author: momentics <momentics@gmail.com>
//
// Executor contract for parallel task dispatch onto the fiber runtime.

package api

// Executor abstracts parallel task execution. The scheduler satisfies it by
// wrapping each submitted task in a single-step fiber.
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error

	// NumWorkers returns current number of active worker threads.
	NumWorkers() int
}
