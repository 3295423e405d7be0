// File: transport/tcp/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package tcp provides a minimal nonblocking TCP listener and connection
// with awaitable accept, read and write, built directly on raw sockets so
// readiness flows through the runtime's reactor instead of the net poller.
package tcp
