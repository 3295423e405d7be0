// File: reactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor implements the runtime's single event source: a kernel
// readiness interface combined with a timer min-heap, running on one
// dedicated thread. Readiness and timer expiry are translated into fiber
// addresses pushed back to the scheduler's global queue.
package reactor
