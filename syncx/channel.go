// File: syncx/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded (or rendezvous, capacity zero) FIFO channel for fibers. Values
// move by direct handoff whenever a peer is already waiting, skipping the
// buffer; a receive that frees a buffer slot immediately pulls the next
// waiting sender's value into it so senders resume in order.

package syncx

import (
	"sync"

	eq "github.com/eapache/queue"

	"github.com/momentics/hioload-fiber/fiber"
)

// SendOp carries one send through suspension. Set Val before the first
// Send call; after Done, Ok reports whether the value was delivered
// (false only when the channel closed first).
type SendOp[T any] struct {
	Val      T
	Ok       bool
	enqueued bool
}

// RecvOp carries one receive through suspension. After Done, Ok is false
// exactly when the channel is closed and drained.
type RecvOp[T any] struct {
	Val      T
	Ok       bool
	enqueued bool
}

type sendWaiter[T any] struct {
	addr fiber.Addr
	op   *SendOp[T]
}

type recvWaiter[T any] struct {
	addr fiber.Addr
	op   *RecvOp[T]
}

// Channel is a FIFO channel of T with a fixed buffer capacity.
type Channel[T any] struct {
	sp  fiber.Spawner
	cap int

	mu     sync.Mutex
	buf    *eq.Queue
	sendq  *eq.Queue
	recvq  *eq.Queue
	closed bool
}

// NewChannel creates a channel with the given buffer capacity; zero makes
// every transfer a rendezvous.
func NewChannel[T any](sp fiber.Spawner, capacity int) *Channel[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Channel[T]{
		sp:    sp,
		cap:   capacity,
		buf:   eq.New(),
		sendq: eq.New(),
		recvq: eq.New(),
	}
}

// Send delivers op.Val: directly to a waiting receiver, into buffer space,
// or by suspending until a receiver or Close resolves it.
func (c *Channel[T]) Send(f *fiber.Fib, op *SendOp[T]) fiber.Status {
	c.mu.Lock()
	if op.enqueued {
		c.mu.Unlock()
		return fiber.Done
	}
	if c.closed {
		op.Ok = false
		c.mu.Unlock()
		return fiber.Done
	}
	if c.recvq.Length() > 0 {
		rw := c.recvq.Remove().(*recvWaiter[T])
		rw.op.Val = op.Val
		rw.op.Ok = true
		op.Ok = true
		c.mu.Unlock()
		c.sp.SpawnAddr(rw.addr)
		return fiber.Done
	}
	if c.buf.Length() < c.cap {
		c.buf.Add(op.Val)
		op.Ok = true
		c.mu.Unlock()
		return fiber.Done
	}
	op.enqueued = true
	c.sendq.Add(&sendWaiter[T]{addr: f.AddrCopy(), op: op})
	c.mu.Unlock()
	return fiber.Pending
}

// Recv takes the next value: from the buffer (refilling it from the head
// waiting sender), directly from a waiting sender, or by suspending.
func (c *Channel[T]) Recv(f *fiber.Fib, op *RecvOp[T]) fiber.Status {
	c.mu.Lock()
	if op.enqueued {
		c.mu.Unlock()
		return fiber.Done
	}
	if c.buf.Length() > 0 {
		op.Val = c.buf.Remove().(T)
		op.Ok = true
		if c.sendq.Length() > 0 {
			sw := c.sendq.Remove().(*sendWaiter[T])
			c.buf.Add(sw.op.Val)
			sw.op.Ok = true
			c.mu.Unlock()
			c.sp.SpawnAddr(sw.addr)
			return fiber.Done
		}
		c.mu.Unlock()
		return fiber.Done
	}
	if c.sendq.Length() > 0 {
		sw := c.sendq.Remove().(*sendWaiter[T])
		op.Val = sw.op.Val
		op.Ok = true
		sw.op.Ok = true
		c.mu.Unlock()
		c.sp.SpawnAddr(sw.addr)
		return fiber.Done
	}
	if c.closed {
		op.Ok = false
		c.mu.Unlock()
		return fiber.Done
	}
	op.enqueued = true
	c.recvq.Add(&recvWaiter[T]{addr: f.AddrCopy(), op: op})
	c.mu.Unlock()
	return fiber.Pending
}

// Close wakes every waiter. Suspended senders observe Ok false; suspended
// receivers observe a closed, empty channel. Close is idempotent.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var wake []fiber.Addr
	for c.sendq.Length() > 0 {
		sw := c.sendq.Remove().(*sendWaiter[T])
		sw.op.Ok = false
		wake = append(wake, sw.addr)
	}
	for c.recvq.Length() > 0 {
		rw := c.recvq.Remove().(*recvWaiter[T])
		rw.op.Ok = false
		wake = append(wake, rw.addr)
	}
	c.mu.Unlock()
	for _, a := range wake {
		c.sp.SpawnAddr(a)
	}
}

// Closed reports whether Close has been called.
func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len returns the number of buffered values.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Length()
}
