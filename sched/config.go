// File: sched/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sched

import (
	"runtime"

	"github.com/rs/zerolog"
)

// Config holds scheduler construction options.
type Config struct {
	// Workers is the number of worker threads. Defaults to the hardware
	// parallelism reported by the Go runtime.
	Workers int

	// LocalQueueCapacity is the initial capacity of each worker's
	// work-stealing deque. The deque grows past it on demand.
	LocalQueueCapacity int

	// SpinBeforePark bounds how many times an idle worker rechecks the
	// global queue before parking.
	SpinBeforePark int

	// PinWorkers pins each worker thread to a CPU on platforms that
	// support it.
	PinWorkers bool

	// ReactorMaxEvents bounds readiness events drained per reactor wait.
	ReactorMaxEvents int

	// Logger receives runtime lifecycle and error logs.
	Logger zerolog.Logger
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:            runtime.NumCPU(),
		LocalQueueCapacity: 1024,
		SpinBeforePark:     50,
		PinWorkers:         false,
		ReactorMaxEvents:   128,
		Logger:             zerolog.Nop(),
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.LocalQueueCapacity <= 0 {
		c.LocalQueueCapacity = d.LocalQueueCapacity
	}
	if c.SpinBeforePark <= 0 {
		c.SpinBeforePark = d.SpinBeforePark
	}
	if c.ReactorMaxEvents <= 0 {
		c.ReactorMaxEvents = d.ReactorMaxEvents
	}
}
