// File: asyncio/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package asyncio bridges fiber suspension to the reactor. Every awaitable
// follows the same shape: try the syscall immediately (fast path); on
// EAGAIN export a counted address, arm a one-shot registration for the
// matching direction, and report Pending; on resumption the poll step
// re-enters the awaitable, which re-issues the syscall, covering spurious
// wakeups and re-arming when the descriptor is still not ready.
package asyncio
