package reactor

import (
	"sync"
	"time"
)

// Dispatch is invoked once per ready fd/mask pair returned by a poll.
type Dispatch func(fd int, mask Mask)

// Loop drives one poll/dispatch/maintenance cycle per tick, owned and run
// exclusively by a single goroutine (spec §5 "Scheduling model"). It is the
// mechanical half of spec §4.1/§4.9: the event batch plus the periodic
// maintenance tick, plus the posted-update queue other goroutines use to
// hand work to the loop thread.
//
// Loop itself knows nothing about connections, HTTP, or TLS - server.Server
// wires a Dispatch callback and a maintenance callback on top of it. This
// mirrors the teacher's separation between eventloop.FastPoller (pure
// readiness) and eventloop.Loop (scheduling policy), except the scheduling
// policy here is "HTTP reactor tick", not "JS microtask/timer scheduler".
type Loop struct {
	poller Poller

	wakeReadFD, wakeWriteFD int

	dispatch    Dispatch
	maintenance func()

	mu           sync.Mutex
	postedConfig []func()
	postedRouter []func()
	postedAsync  []func()

	pollTimeout        time.Duration
	maintenanceEvery   time.Duration
	lastMaintenance    time.Time
	running            bool
	stopRequested      bool
	drainDeadlineCheck func() bool
}

// NewLoop creates a Loop backed by the platform Poller, with the given
// initial poll timeout and maintenance tick interval.
func NewLoop(dispatch Dispatch, maintenance func(), pollTimeout, maintenanceEvery time.Duration) (*Loop, error) {
	p, err := NewPoller()
	if err != nil {
		return nil, err
	}
	rfd, wfd, err := newWakeFD()
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	l := &Loop{
		poller:           p,
		wakeReadFD:       rfd,
		wakeWriteFD:      wfd,
		dispatch:         dispatch,
		maintenance:      maintenance,
		pollTimeout:      pollTimeout,
		maintenanceEvery: maintenanceEvery,
		lastMaintenance:  time.Now(),
	}
	if err := p.Add(rfd, Readable); err != nil {
		_ = closeWakeFD(rfd, wfd)
		_ = p.Close()
		return nil, err
	}
	return l, nil
}

// WakeFD returns the fd the loop listens on for cross-thread wakeups;
// exposed so tests and the server package can recognize it among dispatched
// events (it is never handed to Dispatch - the loop consumes it itself).
func (l *Loop) WakeFD() int { return l.wakeReadFD }

// Add, Mod, Del proxy directly to the underlying Poller.
func (l *Loop) Add(fd int, mask Mask) error { return l.poller.Add(fd, mask) }
func (l *Loop) Mod(fd int, mask Mask) error { return l.poller.Mod(fd, mask) }
func (l *Loop) Del(fd int) error            { return l.poller.Del(fd) }

// UpdatePollTimeout adjusts the wait deadline used by subsequent polls
// (spec §4.1 update_poll_timeout).
func (l *Loop) UpdatePollTimeout(d time.Duration) {
	l.mu.Lock()
	l.pollTimeout = d
	l.mu.Unlock()
}

// PostConfigUpdate, PostRouterUpdate and PostAsyncCompletion enqueue a
// closure to run on the loop goroutine at the top of the next tick, in that
// category order, FIFO within each (spec §4.9 "config, router,
// async-callback completions" / §5 "Posted updates: config before router
// before async resumptions; FIFO within each category"). Safe to call from
// any goroutine.
func (l *Loop) PostConfigUpdate(fn func()) { l.post(&l.postedConfig, fn) }
func (l *Loop) PostRouterUpdate(fn func()) { l.post(&l.postedRouter, fn) }
func (l *Loop) PostAsyncCompletion(fn func()) { l.post(&l.postedAsync, fn) }

func (l *Loop) post(queue *[]func(), fn func()) {
	l.mu.Lock()
	*queue = append(*queue, fn)
	l.mu.Unlock()
	_ = wakeFDSignal(l.wakeWriteFD)
}

// drainPosted swaps out all three posted-update queues under the mutex and
// runs them in config/router/async order, outside the lock.
func (l *Loop) drainPosted() {
	l.mu.Lock()
	cfg, rtr, asy := l.postedConfig, l.postedRouter, l.postedAsync
	l.postedConfig, l.postedRouter, l.postedAsync = nil, nil, nil
	l.mu.Unlock()

	for _, fn := range cfg {
		fn()
	}
	for _, fn := range rtr {
		fn()
	}
	for _, fn := range asy {
		fn()
	}
}

// RequestStop asks the loop to return from Run at the top of the next tick.
// Safe to call from any goroutine.
func (l *Loop) RequestStop() {
	l.mu.Lock()
	l.stopRequested = true
	l.mu.Unlock()
	_ = wakeFDSignal(l.wakeWriteFD)
}

// Run processes ticks until RequestStop is called or the poller reports an
// unrecoverable failure. It must be called from exactly one goroutine - the
// "owning" event-loop thread of spec §5.
func (l *Loop) Run() error {
	for {
		l.mu.Lock()
		stop := l.stopRequested
		timeout := l.pollTimeout
		l.mu.Unlock()
		if stop {
			return nil
		}

		l.drainPosted()

		events, err := l.poller.Poll(int(timeout / time.Millisecond))
		if err != nil {
			// Loop-global failure: escalate to Stopping (spec §7
			// "Loop-global errors ... trigger Stopping").
			return err
		}

		if len(events) == 0 {
			l.runMaintenanceIfDue(true)
			continue
		}

		for _, ev := range events {
			if ev.FD == l.wakeReadFD {
				wakeFDDrain(l.wakeReadFD)
				continue
			}
			l.dispatch(ev.FD, ev.Mask)
		}

		l.runMaintenanceIfDue(false)
	}
}

func (l *Loop) runMaintenanceIfDue(pollWasEmpty bool) {
	if l.maintenance == nil {
		return
	}
	if pollWasEmpty || time.Since(l.lastMaintenance) >= l.maintenanceEvery {
		l.maintenance()
		l.lastMaintenance = time.Now()
	}
}

// Close releases the poller and wake fd. Call after Run has returned.
func (l *Loop) Close() error {
	err1 := l.poller.Close()
	err2 := closeWakeFD(l.wakeReadFD, l.wakeWriteFD)
	if err1 != nil {
		return err1
	}
	return err2
}
