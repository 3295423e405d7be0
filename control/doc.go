// control/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package control provides runtime observability plumbing: a thread-safe
// metrics registry fed by the scheduler's counters.
package control
