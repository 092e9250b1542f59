package server

import (
	"time"

	"github.com/aeronet-go/aeronet/conn"
	"github.com/aeronet-go/aeronet/transport"
)

const scratchBufferShrinkThreshold = 256 * 1024

// runMaintenance is the reactor.Loop maintenance callback (spec §4.1/§5): it
// sweeps every connection once per tick for idle/header/body/handshake/
// close timeouts, retries deferred writes, drains zero-copy completions,
// shrinks oversized scratch buffers, and enforces the drain deadline.
func (s *Server) runMaintenance() {
	start := time.Now()
	defer func() {
		s.cfg.Metrics.MaintenanceTickDuration.Observe(time.Since(start).Seconds())
	}()

	now := time.Now()

	for fd, sc := range s.conns {
		c := sc.c

		if s.sweepTimeouts(sc, now) {
			s.closeConn(fd)
			continue
		}

		if zc, ok := c.Transport.(transport.ZeroCopyCapable); ok {
			_, _ = zc.PollZeroCopyCompletions(func(lastSeq uint32) {
				c.ZeroCopy.Complete(lastSeq)
				s.cfg.Metrics.ZeroCopyCompleted.Inc()
			})
		}

		if len(c.OutBuffer) > 0 || (c.Handler != nil && c.Handler.HasPendingOutput()) || (c.FileSend != nil && c.FileSend.Active) {
			s.maybeFlush(sc)
			if _, stillOpen := s.conns[fd]; !stillOpen {
				continue
			}
		}

		shrinkScratchBuffers(c)
	}

	if s.state() == StateDraining {
		if len(s.conns) == 0 {
			s.Stop()
		} else if !s.drainDeadline.IsZero() && now.After(s.drainDeadline) {
			for fd := range s.conns {
				s.closeConn(fd)
			}
			s.Stop()
		}
	}
}

// sweepTimeouts checks sc against every timeout the maintenance tick owns
// (spec §5's named timeout sweeps) and reports whether the connection
// should be force-closed.
func (s *Server) sweepTimeouts(sc *serverConn, now time.Time) bool {
	c := sc.c

	if !c.Transport.HandshakeDone() {
		if now.Sub(c.HeaderStart) > s.cfg.TLSHandshakeTimeout {
			return true
		}
		return false
	}

	if sc.ws != nil {
		if sc.ws.checkCloseTimeout(now) {
			return true
		}
	}

	if c.Handler == nil {
		if c.Flags.WaitingForBody {
			if now.Sub(c.BodyLastActivity) > s.cfg.BodyReadTimeout {
				return true
			}
		} else if c.RequestCount == 0 || len(c.InputBuffer) > 0 {
			if now.Sub(c.HeaderStart) > s.cfg.HeaderReadTimeout {
				return true
			}
		} else if s.cfg.KeepAliveTimeout > 0 && now.Sub(c.LastActivity) > s.cfg.KeepAliveTimeout {
			return true
		}
	}

	return false
}

// shrinkScratchBuffers releases over-grown buffers back to a modest
// capacity once a connection is idle, so one large request/response does
// not pin megabytes of memory for the rest of the connection's life.
func shrinkScratchBuffers(c *conn.Connection) {
	if len(c.InputBuffer) == 0 && cap(c.InputBuffer) > scratchBufferShrinkThreshold {
		c.InputBuffer = nil
	}
	if len(c.OutBuffer) == 0 && cap(c.OutBuffer) > scratchBufferShrinkThreshold {
		c.OutBuffer = nil
	}
}
