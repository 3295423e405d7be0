//go:build linux
// +build linux

// File: asyncio/fd.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package asyncio

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/reactor"
)

// FD is a nonblocking descriptor with awaitable read/write/accept.
type FD struct {
	fd int
	rx *reactor.Reactor
}

// NewFD wraps fd, switching it to nonblocking mode.
func NewFD(fd int, rx *reactor.Reactor) *FD {
	_ = unix.SetNonblock(fd, true)
	return &FD{fd: fd, rx: rx}
}

// Fd returns the raw descriptor.
func (x *FD) Fd() int { return x.fd }

// Close closes the descriptor.
func (x *FD) Close() error { return unix.Close(x.fd) }

// Read attempts a read. A zero count with a nil error is end of file.
// Pending means the fiber suspended on a read registration and the caller
// must propagate it out of the poll step.
func (x *FD) Read(f *fiber.Fib, buf []byte) (int, fiber.Status, error) {
	for {
		n, err := unix.Read(x.fd, buf)
		switch err {
		case nil:
			return n, fiber.Done, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			st, serr := x.suspend(f, false)
			return 0, st, serr
		default:
			return 0, fiber.Done, err
		}
	}
}

// Write attempts a write, suspending on a write registration when the
// send buffer is full. Registering the read direction here would deadlock
// permanently; direction pairing is fixed per operation.
func (x *FD) Write(f *fiber.Fib, buf []byte) (int, fiber.Status, error) {
	for {
		n, err := unix.Write(x.fd, buf)
		switch err {
		case nil:
			return n, fiber.Done, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			st, serr := x.suspend(f, true)
			return 0, st, serr
		default:
			return 0, fiber.Done, err
		}
	}
}

// Accept attempts to accept a connection; the new descriptor is returned
// nonblocking and close-on-exec. Accept readiness is read readiness.
func (x *FD) Accept(f *fiber.Fib) (int, fiber.Status, error) {
	for {
		nfd, _, err := unix.Accept4(x.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			return nfd, fiber.Done, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			st, serr := x.suspend(f, false)
			return -1, st, serr
		default:
			return -1, fiber.Done, err
		}
	}
}

// suspend arms the one-shot registration carrying one reference. A
// registration failure keeps the reference on this side: it is released
// here and the error surfaces to the fiber as a failed operation.
func (x *FD) suspend(f *fiber.Fib, write bool) (fiber.Status, error) {
	a := f.AddrCopy()
	var err error
	if write {
		err = x.rx.RegisterWrite(x.fd, a)
	} else {
		err = x.rx.RegisterRead(x.fd, a)
	}
	if err != nil {
		fiber.ReleaseAddr(a)
		return fiber.Done, err
	}
	return fiber.Pending, nil
}
