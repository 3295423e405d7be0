//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub reactor for platforms without an epoll backend. Construction fails;
// the method set exists so dependent packages compile everywhere.

package reactor

import (
	"time"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/fiber"
)

// Reactor is unavailable on this platform.
type Reactor struct{}

// New always fails on non-Linux platforms.
func New(sp fiber.Spawner, cfg Config) (*Reactor, error) {
	return nil, api.ErrNotSupported
}

func (r *Reactor) Start() {}
func (r *Reactor) Stop()  {}
func (r *Reactor) Wake()  {}

func (r *Reactor) RegisterRead(fd int, addr fiber.Addr) error  { return api.ErrNotSupported }
func (r *Reactor) RegisterWrite(fd int, addr fiber.Addr) error { return api.ErrNotSupported }

func (r *Reactor) AddTimer(when time.Time, addr fiber.Addr) {}
