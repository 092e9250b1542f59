//go:build linux

package reactor

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux epoll implementation of Poller.
//
// Grounded on eventloop/poller_linux.go's FastPoller: EpollCreate1 +
// EpollCtl + EpollWait over a preallocated unix.EpollEvent buffer. Unlike
// the teacher, which direct-indexes a fixed 65536-entry fd array to avoid a
// map lookup in a generic JS-task scheduler, this poller does not own any
// per-fd application state at all - the reactor owns a conn-table keyed by
// fd (spec §3, §9 "cyclic references") and looks connections up itself
// after Poll returns. That lets the buffer grow dynamically per spec §4.1
// ("initial capacity 64 ... doubles on a full poll") instead of being fixed
// at compile time.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
	out    []Event
	closed atomic.Bool
}

// NewPoller creates and initializes a Linux epoll-backed Poller.
func NewPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:   fd,
		events: make([]unix.EpollEvent, initialEventCapacity),
		out:    make([]Event, 0, initialEventCapacity),
	}, nil
}

const initialEventCapacity = 64

func (p *epollPoller) Add(fd int, mask Mask) error {
	if p.closed.Load() {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: toEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Mod(fd int, mask Mask) error {
	if p.closed.Load() {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: toEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Del(fd int) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Poll implements the sizing/growth policy of spec §4.1: the buffer starts
// at 64 events and doubles whenever a poll returns exactly len(buffer)
// events (a strong signal more were ready than fit). Growth failure (OOM)
// is non-fatal - the next poll just reuses the existing capacity.
func (p *epollPoller) Poll(timeoutMillis int) ([]Event, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	n, err := unix.EpollWait(p.epfd, p.events, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return p.out[:0], nil
		}
		return nil, err
	}

	p.out = p.out[:0]
	for i := 0; i < n; i++ {
		p.out = append(p.out, Event{
			FD:   int(p.events[i].Fd),
			Mask: fromEpoll(p.events[i].Events),
		})
	}

	if n == len(p.events) {
		p.grow()
	}

	return p.out, nil
}

// grow doubles the event buffer's capacity. Capacity never shrinks (spec
// §4.1). Allocation failure here is recovered and ignored; Go's allocator
// panics on OOM rather than returning an error, so there is nothing
// meaningful to fall back to beyond keeping the old buffer.
func (p *epollPoller) grow() {
	defer func() { _ = recover() }()
	next := make([]unix.EpollEvent, len(p.events)*2)
	p.events = next
}

func (p *epollPoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(p.epfd)
}

func toEpoll(mask Mask) uint32 {
	var e uint32
	if mask&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	if mask&ReadHangup != 0 {
		e |= unix.EPOLLRDHUP
	}
	// Edge-triggered mode is always requested: the reactor is built around
	// draining until EAGAIN (spec glossary "Edge-triggered (ET)").
	e |= unix.EPOLLET
	return e
}

func fromEpoll(e uint32) Mask {
	var m Mask
	if e&unix.EPOLLIN != 0 {
		m |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		m |= Writable
	}
	if e&unix.EPOLLRDHUP != 0 {
		m |= ReadHangup
	}
	if e&unix.EPOLLHUP != 0 {
		m |= Hangup
	}
	if e&unix.EPOLLERR != 0 {
		m |= Err
	}
	return m
}
