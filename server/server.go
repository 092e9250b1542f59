package server

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/aeronet-go/aeronet/conn"
	"github.com/aeronet-go/aeronet/ratelimit"
	"github.com/aeronet-go/aeronet/reactor"
	"github.com/aeronet-go/aeronet/tlsconfig"
	"github.com/aeronet-go/aeronet/transport"
)

// State is one of the three lifecycle states spec §4.9's state machine
// describes: Stopped, Running, Draining.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateDraining
)

// Server is one event-loop-owning worker (spec §4.9/§5): it owns a listening
// socket, a reactor.Loop, and the set of live connections, all touched only
// from the goroutine that calls Run.
type Server struct {
	cfg    Config
	router Router

	mu        sync.Mutex
	lifecycle State

	listenerFD int
	loop       *reactor.Loop
	conns      map[int]*serverConn

	tlsCtx           *tlsconfig.Context
	handshakeLimiter *ratelimit.HandshakeLimiter

	drainDeadline time.Time

	ready chan struct{}
}

// New builds a Server from cfg and router but does not bind or start it;
// call Start to do that (spec §4.9 Stopped -> Running). Each Server built
// this way owns its own TLS Context; use Workers to run several instances
// sharing one Context (and so one session-ticket rotation) for spec
// §4.10's SO_REUSEPORT shard.
func New(cfg Config, router Router) (*Server, error) {
	return newServer(cfg, router, nil)
}

func newServer(cfg Config, router Router, tlsCtx *tlsconfig.Context) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server: invalid config: %w", err)
	}
	if router == nil {
		router = RouterFunc(func(string, string) RoutingResult { return RoutingResult{} })
	}

	s := &Server{
		cfg:              cfg,
		router:           router,
		conns:            make(map[int]*serverConn),
		handshakeLimiter: ratelimit.NewHandshakeLimiter(cfg.HandshakeRateLimitPerSecond),
		ready:            make(chan struct{}),
		tlsCtx:           tlsCtx,
	}

	if cfg.TLS != nil && s.tlsCtx == nil {
		ctx, err := cfg.TLS.Build()
		if err != nil {
			return nil, fmt.Errorf("server: building tls context: %w", err)
		}
		s.tlsCtx = ctx
	}

	return s, nil
}

// Port blocks until the listening socket is bound and returns the port the
// kernel assigned it - the actual port when Config.Port was 0.
func (s *Server) Port() (int, error) {
	<-s.ready
	return boundPort(s.listenerFD)
}

func (s *Server) state() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

// Start binds the listening socket, creates the reactor loop, and runs it
// until Stop or an unrecoverable poller error (spec §4.9 Running). It
// blocks for the lifetime of the server, mirroring the teacher's own
// single-goroutine event-loop ownership (spec §5 "Scheduling model").
func (s *Server) Start() error {
	s.mu.Lock()
	if s.lifecycle != StateStopped {
		s.mu.Unlock()
		return fmt.Errorf("server: already started")
	}
	s.lifecycle = StateRunning
	s.mu.Unlock()

	fd, err := newListener(s.cfg.Port, s.cfg.ReusePort)
	if err != nil {
		return err
	}
	s.listenerFD = fd

	loop, err := reactor.NewLoop(s.dispatch, s.runMaintenance, s.cfg.PollInterval, s.cfg.MaintenanceEvery)
	if err != nil {
		_ = syscallClose(fd)
		return err
	}
	s.loop = loop

	if err := loop.Add(fd, reactor.Readable); err != nil {
		_ = loop.Close()
		_ = syscallClose(fd)
		return err
	}

	s.cfg.Logger.Info().Log("listener started")
	close(s.ready)

	err = loop.Run()

	for connFD := range s.conns {
		s.closeConn(connFD)
	}
	_ = loop.Close()
	_ = syscallClose(fd)

	s.mu.Lock()
	s.lifecycle = StateStopped
	s.mu.Unlock()

	return err
}

// BeginDrain moves the server to Draining (spec §4.9 "begin_drain(deadline)
// ... stop accepting new connections, allow in-flight requests to finish").
// It is safe to call from any goroutine.
func (s *Server) BeginDrain(deadline time.Duration) {
	s.mu.Lock()
	s.lifecycle = StateDraining
	s.drainDeadline = time.Now().Add(deadline)
	s.mu.Unlock()
	if s.loop != nil {
		s.loop.PostConfigUpdate(func() {
			for fd, sc := range s.conns {
				if sc.c.Handler == nil {
					sc.c.CloseMode.Raise(conn.CloseDrainThenClose)
				}
				_ = fd
			}
		})
	}
}

// Stop requests the event loop to return from Run on its next tick (spec
// §4.9 Draining -> Stopped, or a hard stop from Running).
func (s *Server) Stop() {
	if s.loop != nil {
		s.loop.RequestStop()
	}
}

// ApplyConfigUpdate posts a config replacement to the loop goroutine,
// restoring any attempted change to an immutable field first (spec §4.9
// "Immutable config fields ... silently restored").
func (s *Server) ApplyConfigUpdate(next Config) {
	if s.loop == nil {
		return
	}
	s.loop.PostConfigUpdate(func() {
		snap := s.cfg.snapshotImmutable()
		next = next.withDefaults()
		snap.restore(&next)
		s.cfg = next
	})
}

// ApplyRouterUpdate posts a router swap to the loop goroutine (spec §4.9
// "router ... hot-swappable").
func (s *Server) ApplyRouterUpdate(next Router) {
	if s.loop == nil {
		return
	}
	s.loop.PostRouterUpdate(func() {
		if next != nil {
			s.router = next
		}
	})
}

// dispatch is the reactor.Dispatch callback: demultiplex a ready fd to
// either the accept path (the listener) or an established connection.
func (s *Server) dispatch(fd int, mask reactor.Mask) {
	if fd == s.listenerFD {
		s.acceptLoop()
		return
	}
	sc, ok := s.conns[fd]
	if !ok {
		return
	}
	if mask&(reactor.Readable|reactor.Hangup|reactor.ReadHangup|reactor.Err) != 0 {
		s.handleReadable(sc)
	}
	if _, stillOpen := s.conns[fd]; !stillOpen {
		return
	}
	if mask&reactor.Writable != 0 {
		s.handleWritable(sc)
	}
}

// acceptLoop drains the listener's accept backlog (edge-triggered: must
// Accept until EAGAIN, spec §4.1).
func (s *Server) acceptLoop() {
	for {
		if s.draining() {
			return
		}
		connFD, sa, err := accept4NonBlocking(s.listenerFD)
		if err != nil {
			if err == errWouldBlock {
				return
			}
			return
		}

		s.cfg.Metrics.ConnectionsAccepted.Inc()

		if _, allowed := s.handshakeLimiter.Allow("handshake"); !allowed && s.cfg.TLS != nil {
			s.cfg.Metrics.HandshakeRateLimited.Inc()
			_ = syscallClose(connFD)
			continue
		}

		var tr transport.Transport
		if s.cfg.TLS != nil {
			fc, err := fdToNetConn(connFD)
			if err != nil {
				_ = syscallClose(connFD)
				continue
			}
			tlsCfg := s.tlsCtx.Acquire()
			tr = transport.NewTLS(connFD, fc, tlsCfg, true)
		} else {
			tr = transport.NewPlain(connFD)
		}

		c := conn.New(connFD, tr)
		sc := newServerConn(c, sockaddrString(sa))

		if err := s.loop.Add(connFD, reactor.Readable); err != nil {
			_ = tr.Close()
			continue
		}
		s.conns[connFD] = sc
	}
}

// handleReadable pumps Transport.Read into InputBuffer and feeds the
// HTTP/1.1 pipeline (or an installed ProtocolHandler) until blocked or
// closed (spec §4.3/§4.7).
func (s *Server) handleReadable(sc *serverConn) {
	c := sc.c
	s.checkHandshakeComplete(sc)
	buf := make([]byte, 64*1024)
	for {
		out := c.Transport.Read(buf)
		if out.N > 0 {
			c.InputBuffer = append(c.InputBuffer, buf[:out.N]...)
			c.Touch()
			s.cfg.Metrics.BytesRead.Add(float64(out.N))
		}

		s.checkHandshakeComplete(sc)
		s.drainInput(sc)
		if _, ok := s.conns[c.FD]; !ok {
			return
		}

		switch out.Hint {
		case transport.None:
			if out.N == 0 {
				s.closeConn(c.FD)
				return
			}
			continue
		case transport.ReadReady:
			s.maybeFlush(sc)
			return
		default:
			s.closeConn(c.FD)
			return
		}
	}
}

// drainInput feeds buffered bytes to whichever layer currently owns the
// connection: the HTTP/1.1 pipeline before upgrade, or the installed
// ProtocolHandler afterwards (spec §3's protocol==HTTP11 <=> handler==nil
// invariant).
func (s *Server) drainInput(sc *serverConn) {
	c := sc.c
	for {
		if c.Handler == nil {
			if !s.advanceHTTP1(sc) {
				return
			}
			continue
		}
		if len(c.InputBuffer) == 0 {
			return
		}
		action, consumed := c.Handler.ProcessInput(c.InputBuffer, c)
		if consumed > 0 {
			c.InputBuffer = append(c.InputBuffer[:0], c.InputBuffer[consumed:]...)
		}
		switch action {
		case conn.ActionClose:
			c.CloseMode.Raise(conn.CloseDrainThenClose)
			return
		case conn.ActionCloseImmediate:
			c.CloseMode.Raise(conn.CloseImmediate)
			s.closeConn(c.FD)
			return
		case conn.ActionContinue, conn.ActionResponseReady, conn.ActionUpgrade:
			if consumed == 0 {
				return
			}
		}
	}
}

// handleWritable flushes OutBuffer, the ProtocolHandler's own pending
// output, and the file-send engine, in that order (spec §4.4/§4.7).
func (s *Server) handleWritable(sc *serverConn) {
	s.maybeFlush(sc)
}

func (s *Server) maybeFlush(sc *serverConn) {
	c := sc.c
	for len(c.OutBuffer) > 0 {
		out := c.Transport.Write(c.OutBuffer)
		if out.N > 0 {
			c.OutBuffer = c.OutBuffer[out.N:]
			s.cfg.Metrics.BytesWritten.Add(float64(out.N))
		}
		switch out.Hint {
		case transport.None:
			if out.N == 0 {
				s.closeConn(c.FD)
				return
			}
			continue
		case transport.WriteReady:
			s.armWritable(c)
			return
		default:
			s.closeConn(c.FD)
			return
		}
	}

	if c.Handler != nil && c.Handler.HasPendingOutput() {
		pending := c.Handler.PendingOutput()
		out := c.Transport.Write(pending)
		if out.N > 0 {
			c.Handler.OnOutputWritten(out.N)
		}
		if out.Hint == transport.WriteReady {
			s.armWritable(c)
			return
		}
		if out.Hint != transport.None {
			s.closeConn(c.FD)
			return
		}
	}

	if c.FileSend != nil && c.FileSend.Active {
		s.pumpFile(sc)
		return
	}

	if c.CloseMode == conn.CloseDrainThenClose && c.CanCloseImmediately() {
		s.closeConn(c.FD)
		return
	}

	s.disarmWritable(c)
}

// armWritable registers EPOLLOUT interest and raises the WaitingWritable
// flag that mirrors it (spec §3/§8 "waitingWritable <-> EPOLLOUT").
func (s *Server) armWritable(c *conn.Connection) {
	_ = s.loop.Mod(c.FD, reactor.Readable|reactor.Writable)
	c.Flags.WaitingWritable = true
}

// disarmWritable drops EPOLLOUT interest once nothing remains to flush.
func (s *Server) disarmWritable(c *conn.Connection) {
	_ = s.loop.Mod(c.FD, reactor.Readable)
	c.Flags.WaitingWritable = false
}

func (s *Server) pumpFile(sc *serverConn) {
	c := sc.c
	result, _ := conn.PumpFileSend(c)
	switch result {
	case conn.FileSendProgressed:
		s.pumpFile(sc)
	case conn.FileSendComplete:
		s.maybeFlush(sc)
	case conn.FileSendWouldBlockArmWritable:
		s.armWritable(c)
	case conn.FileSendWouldBlockRetryLater:
		// OutBuffer still has header bytes pending; maybeFlush handles them.
	case conn.FileSendError:
		s.closeConn(c.FD)
	}
}

func (s *Server) closeConn(fd int) {
	sc, ok := s.conns[fd]
	if !ok {
		return
	}
	if sc.c.Handler != nil {
		sc.c.Handler.OnTransportClosing()
	}
	_ = s.loop.Del(fd)
	_ = sc.c.Transport.Close()
	delete(s.conns, fd)
	if s.tlsCtx != nil {
		s.tlsCtx.Release()
	}
	s.cfg.Metrics.ConnectionsClosed.WithLabelValues("closed").Inc()
}

// checkHandshakeComplete notices the first moment a TLS handshake finishes
// (spec §4.9/§6) and, from that single moment, records handshake duration,
// notifies conn's handshake observer, and attempts kTLS send offload on a
// transport that implements transport.KTLSCapable (TLS.KTLSMode is not
// consulted) plus MSG_ZEROCOPY unless ZeroCopyMode is ZeroCopyDisabled.
func (s *Server) checkHandshakeComplete(sc *serverConn) {
	if s.cfg.TLS == nil || sc.handshakeDone || !sc.c.Transport.HandshakeDone() {
		return
	}
	sc.handshakeDone = true
	sc.c.NotifyHandshake(true)
	s.cfg.Metrics.HandshakeDuration.Observe(time.Since(sc.handshakeStart).Seconds())

	if kt, ok := sc.c.Transport.(transport.KTLSCapable); ok {
		switch kt.EnableKTLSSend() {
		case transport.KTLSEnabled:
			s.cfg.Metrics.KTLSEnabled.Inc()
		case transport.KTLSUnsupported:
			s.cfg.Metrics.KTLSUnsupported.Inc()
		}
	}

	if s.cfg.ZeroCopyMode != ZeroCopyDisabled {
		if zc, ok := sc.c.Transport.(transport.ZeroCopyCapable); ok {
			zc.EnableZeroCopy()
		}
	}
}

func syscallClose(fd int) error { return closeRawFD(fd) }

func fdToNetConn(fd int) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), "aeronet-conn")
	fc, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	return fc, nil
}
