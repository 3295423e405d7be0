//go:build linux
// +build linux

// File: sched/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU pinning for worker threads via sched_setaffinity.

package sched

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinThread binds the calling OS thread to one CPU, chosen by worker id
// modulo the available CPUs. The caller must hold LockOSThread.
func pinThread(id int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(id % runtime.NumCPU())
	return unix.SchedSetaffinity(0, &set)
}
