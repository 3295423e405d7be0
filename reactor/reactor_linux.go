//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) reactor. One dedicated thread waits on an epoll instance
// plus an eventfd used for wakeups, translating readiness and timer expiry
// into fiber addresses handed back to the scheduler through the global
// queue.
//
// Registrations are one-shot per (fd, direction): each fires at most once
// and must be re-armed by the next await. Error and hangup conditions
// count as readiness for every direction registered on the descriptor, so
// a fiber waiting on a peer-closed socket is always delivered and can
// observe EOF; a registration is consumed on delivery or at shutdown,
// never dropped.

package reactor

import (
	"container/heap"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/fiber"
)

const (
	readReadyMask  = unix.EPOLLIN | unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP
	writeReadyMask = unix.EPOLLOUT | unix.EPOLLERR | unix.EPOLLHUP
)

// fdState tracks the at-most-one registration per direction for an fd.
type fdState struct {
	read  fiber.Addr
	write fiber.Addr
}

// Reactor owns the epoll instance, the wake eventfd and the timer heap.
type Reactor struct {
	epfd   int
	wakefd int
	sp     fiber.Spawner
	cfg    Config
	log    zerolog.Logger

	mu     sync.Mutex
	regs   map[int32]*fdState
	timers timerHeap

	running atomic.Bool
	done    chan struct{}
}

// New creates a reactor delivering wakeups through sp. The reactor thread
// does not run until Start.
func New(sp fiber.Spawner, cfg Config) (*Reactor, error) {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultConfig().MaxEvents
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.NewError(api.ErrCodeInternal, "epoll create").WithContext("err", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, api.NewError(api.ErrCodeInternal, "eventfd create").WithContext("err", err)
	}
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(wakefd),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, api.NewError(api.ErrCodeInternal, "epoll ctl wakefd").WithContext("err", err)
	}
	return &Reactor{
		epfd:   epfd,
		wakefd: wakefd,
		sp:     sp,
		cfg:    cfg,
		log:    cfg.Logger,
		regs:   make(map[int32]*fdState),
		done:   make(chan struct{}),
	}, nil
}

// Start launches the reactor loop on its own locked thread.
func (r *Reactor) Start() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	go r.loop()
}

// Stop wakes the loop, waits for it to exit, and closes the descriptors.
// Pending registrations and timers are flushed through the spawner so the
// scheduler's shutdown drain reclaims their fibers.
func (r *Reactor) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	r.Wake()
	<-r.done
	unix.Close(r.wakefd)
	unix.Close(r.epfd)
}

// Wake forces the reactor to return from its current wait.
func (r *Reactor) Wake() {
	buf := []byte{1, 0, 0, 0, 0, 0, 0, 0}
	_, _ = unix.Write(r.wakefd, buf)
}

// RegisterRead arms a one-shot readable registration delivering addr. The
// addr carries one reference, consumed on delivery; on error the caller
// keeps the reference and must release it.
func (r *Reactor) RegisterRead(fd int, addr fiber.Addr) error {
	return r.register(fd, addr, false)
}

// RegisterWrite arms a one-shot writable registration delivering addr.
// Awaiting writability with a read registration (or vice versa) is a
// permanent deadlock when the buffer in question stays full, so the
// direction is part of the registration, never inferred.
func (r *Reactor) RegisterWrite(fd int, addr fiber.Addr) error {
	return r.register(fd, addr, true)
}

func (r *Reactor) register(fd int, addr fiber.Addr, write bool) error {
	if !r.running.Load() {
		return api.ErrReactorClosed
	}
	if fd < 0 || addr == nil {
		return api.ErrInvalidArgument
	}
	r.mu.Lock()
	st := r.regs[int32(fd)]
	if st == nil {
		st = &fdState{}
		r.regs[int32(fd)] = st
	}
	if write {
		if st.write != nil {
			r.mu.Unlock()
			return api.ErrAlreadyRegistered
		}
		st.write = addr
	} else {
		if st.read != nil {
			r.mu.Unlock()
			return api.ErrAlreadyRegistered
		}
		st.read = addr
	}
	err := r.arm(int32(fd), st)
	if err != nil {
		if write {
			st.write = nil
		} else {
			st.read = nil
		}
		if st.read == nil && st.write == nil {
			delete(r.regs, int32(fd))
		}
		r.mu.Unlock()
		r.log.Error().Int("fd", fd).Bool("write", write).Err(err).
			Msg("readiness registration failed")
		return api.NewError(api.ErrCodeRegistration, "epoll ctl").
			WithContext("fd", fd).WithContext("err", err)
	}
	r.mu.Unlock()
	return nil
}

// arm installs or refreshes the one-shot epoll entry covering every
// direction currently registered on fd. Called with r.mu held.
func (r *Reactor) arm(fd int32, st *fdState) error {
	var events uint32 = unix.EPOLLONESHOT | unix.EPOLLRDHUP
	if st.read != nil {
		events |= unix.EPOLLIN
	}
	if st.write != nil {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: fd}
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev)
	if err == unix.EEXIST {
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev)
	}
	return err
}

// AddTimer schedules delivery of addr no earlier than when. If the new
// entry becomes the earliest, the loop is woken to shorten its wait.
func (r *Reactor) AddTimer(when time.Time, addr fiber.Addr) {
	if addr == nil {
		return
	}
	r.mu.Lock()
	heap.Push(&r.timers, timerEntry{when: when, addr: addr})
	needWake := r.timers[0].when.Equal(when)
	r.mu.Unlock()
	if needWake {
		r.Wake()
	}
}

func (r *Reactor) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)
	events := make([]unix.EpollEvent, r.cfg.MaxEvents)

	for r.running.Load() {
		n, err := unix.EpollWait(r.epfd, events, r.nextTimeout())
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			r.log.Error().Err(err).Msg("epoll wait failed")
			continue
		}
		for i := 0; i < n; i++ {
			r.dispatch(&events[i])
		}
		r.fireTimers()
	}
	r.drainPending()
}

// nextTimeout computes the epoll timeout in milliseconds from the earliest
// pending timer: -1 with no timers, 0 when one is already due.
func (r *Reactor) nextTimeout() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.timers) == 0 {
		return -1
	}
	d := time.Until(r.timers[0].when)
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

func (r *Reactor) dispatch(ev *unix.EpollEvent) {
	if int(ev.Fd) == r.wakefd {
		var buf [8]byte
		_, _ = unix.Read(r.wakefd, buf[:])
		return
	}

	var rd, wr fiber.Addr
	r.mu.Lock()
	st := r.regs[ev.Fd]
	if st != nil {
		if st.read != nil && ev.Events&readReadyMask != 0 {
			rd = st.read
			st.read = nil
		}
		if st.write != nil && ev.Events&writeReadyMask != 0 {
			wr = st.write
			st.write = nil
		}
		if st.read == nil && st.write == nil {
			delete(r.regs, ev.Fd)
		} else if err := r.arm(ev.Fd, st); err != nil {
			// Descriptor vanished under us: resolve the survivor as
			// delivered rather than strand its fiber.
			if st.read != nil {
				rd = st.read
				st.read = nil
			}
			if st.write != nil {
				wr = st.write
				st.write = nil
			}
			delete(r.regs, ev.Fd)
		}
	}
	r.mu.Unlock()

	if rd != nil {
		r.sp.SpawnAddr(rd)
	}
	if wr != nil {
		r.sp.SpawnAddr(wr)
	}
}

func (r *Reactor) fireTimers() {
	now := time.Now()
	var fired []fiber.Addr
	r.mu.Lock()
	for len(r.timers) > 0 && !r.timers[0].when.After(now) {
		e := heap.Pop(&r.timers).(timerEntry)
		fired = append(fired, e.addr)
	}
	r.mu.Unlock()
	for _, a := range fired {
		r.sp.SpawnAddr(a)
	}
}

// drainPending flushes every outstanding registration and timer into the
// spawner after the loop stops, so no fiber reference is stranded.
func (r *Reactor) drainPending() {
	var pending []fiber.Addr
	r.mu.Lock()
	for fd, st := range r.regs {
		if st.read != nil {
			pending = append(pending, st.read)
		}
		if st.write != nil {
			pending = append(pending, st.write)
		}
		delete(r.regs, fd)
	}
	for len(r.timers) > 0 {
		e := heap.Pop(&r.timers).(timerEntry)
		pending = append(pending, e.addr)
	}
	r.mu.Unlock()
	for _, a := range pending {
		r.sp.SpawnAddr(a)
	}
}
