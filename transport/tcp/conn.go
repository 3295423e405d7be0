//go:build linux
// +build linux

// File: transport/tcp/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"github.com/momentics/hioload-fiber/asyncio"
	"github.com/momentics/hioload-fiber/fiber"
)

// Conn is a nonblocking accepted connection.
type Conn struct {
	fd *asyncio.FD
}

// Read awaits readable data. A zero count with nil error is EOF.
func (c *Conn) Read(f *fiber.Fib, buf []byte) (int, fiber.Status, error) {
	return c.fd.Read(f, buf)
}

// Write awaits writability and writes at most once; callers loop over the
// unwritten tail.
func (c *Conn) Write(f *fiber.Fib, buf []byte) (int, fiber.Status, error) {
	return c.fd.Write(f, buf)
}

// Fd returns the raw descriptor.
func (c *Conn) Fd() int { return c.fd.Fd() }

// Close closes the connection.
func (c *Conn) Close() error { return c.fd.Close() }
