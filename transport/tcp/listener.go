//go:build linux
// +build linux

// File: transport/tcp/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/asyncio"
	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/reactor"
)

const acceptBacklog = 4096

// Listener is a nonblocking listening socket.
type Listener struct {
	fd *asyncio.FD
	rx *reactor.Reactor
}

// Listen binds and listens on an IPv4 host:port address. An empty host
// binds all interfaces.
func Listen(rx *reactor.Reactor, addr string) (*Listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "bad listen address").
			WithContext("addr", addr).WithContext("err", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "bad listen port").
			WithContext("addr", addr)
	}
	sa := &unix.SockaddrInet4{Port: port}
	if host != "" {
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() == nil {
			return nil, api.NewError(api.ErrCodeInvalidArgument, "not an IPv4 address").
				WithContext("host", host)
		}
		copy(sa.Addr[:], ip.To4())
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, acceptBacklog); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Listener{fd: asyncio.NewFD(fd, rx), rx: rx}, nil
}

// Accept awaits the next connection. Pending must be propagated out of the
// poll step; on re-entry the accept is re-issued.
func (l *Listener) Accept(f *fiber.Fib) (*Conn, fiber.Status, error) {
	nfd, st, err := l.fd.Accept(f)
	if st == fiber.Pending {
		return nil, fiber.Pending, nil
	}
	if err != nil {
		return nil, fiber.Done, err
	}
	return &Conn{fd: asyncio.NewFD(nfd, l.rx)}, fiber.Done, nil
}

// Port returns the locally bound port.
func (l *Listener) Port() (int, error) {
	sa, err := unix.Getsockname(l.fd.Fd())
	if err != nil {
		return 0, err
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, api.ErrNotSupported
	}
	return in4.Port, nil
}

// Close closes the listening socket.
func (l *Listener) Close() error { return l.fd.Close() }
