//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package reactor

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the BSD/Darwin kqueue fallback. Grounded on
// eventloop/poller_darwin.go's FastPoller, adapted the same way as the
// Linux poller: no per-fd application state owned here, dynamic growth of
// the event buffer per spec §4.1, and a Mask-based public interface instead
// of raw unix.Kevent_t filters leaking out.
//
// kqueue has no edge-triggered pendant to EPOLLET that aeronet needs to set
// explicitly - EV_CLEAR achieves the equivalent "notify only on state
// change" semantics and is applied on every registration.
type kqueuePoller struct {
	kq     int
	events []unix.Kevent_t
	out    []Event
	// interest tracks the mask last requested per fd, since kqueue
	// registers read/write interest as independent filters rather than a
	// single combined event like epoll.
	interest map[int]Mask
	closed   atomic.Bool
}

// NewPoller creates and initializes a kqueue-backed Poller.
func NewPoller() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{
		kq:       kq,
		events:   make([]unix.Kevent_t, initialEventCapacity),
		out:      make([]Event, 0, initialEventCapacity),
		interest: make(map[int]Mask),
	}, nil
}

const initialEventCapacity = 64

func (p *kqueuePoller) Add(fd int, mask Mask) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.interest[fd] = mask
	return p.apply(fd, mask, 0)
}

func (p *kqueuePoller) Mod(fd int, mask Mask) error {
	if p.closed.Load() {
		return ErrClosed
	}
	old := p.interest[fd]
	p.interest[fd] = mask
	return p.apply(fd, mask, old)
}

func (p *kqueuePoller) apply(fd int, mask, old Mask) error {
	var changes []unix.Kevent_t
	wantRead := mask&Readable != 0
	wantWrite := mask&Writable != 0
	hadRead := old&Readable != 0
	hadWrite := old&Writable != 0

	if wantRead != hadRead {
		flags := uint16(unix.EV_ADD | unix.EV_CLEAR)
		if !wantRead {
			flags = unix.EV_DELETE
		}
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if wantWrite != hadWrite {
		flags := uint16(unix.EV_ADD | unix.EV_CLEAR)
		if !wantWrite {
			flags = unix.EV_DELETE
		}
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Del(fd int) error {
	if p.closed.Load() {
		return ErrClosed
	}
	delete(p.interest, fd)
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Poll(timeoutMillis int) ([]Event, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	var ts *unix.Timespec
	if timeoutMillis >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMillis) * int64(1e6))
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return p.out[:0], nil
		}
		return nil, err
	}

	merged := make(map[int]Mask, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Ident)
		m, seen := merged[fd]
		if !seen {
			order = append(order, fd)
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			m |= Readable
		case unix.EVFILT_WRITE:
			m |= Writable
		}
		if ev.Flags&unix.EV_EOF != 0 {
			m |= Hangup
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			m |= Err
		}
		merged[fd] = m
	}

	p.out = p.out[:0]
	for _, fd := range order {
		p.out = append(p.out, Event{FD: fd, Mask: merged[fd]})
	}

	if n == len(p.events) {
		p.grow()
	}

	return p.out, nil
}

func (p *kqueuePoller) grow() {
	defer func() { _ = recover() }()
	next := make([]unix.Kevent_t, len(p.events)*2)
	p.events = next
}

func (p *kqueuePoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(p.kq)
}
