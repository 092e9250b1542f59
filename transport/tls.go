package transport

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// TLS adapts a crypto/tls.Conn, which only exposes a blocking net.Conn
// contract, to the reactor's non-blocking Transport contract.
//
// The standard library has no non-blocking BIO equivalent for crypto/tls
// (unlike an OpenSSL-backed implementation, which can drive handshake and
// record I/O against a non-blocking memory BIO from the reactor thread
// itself). TLS therefore runs the actual tls.Conn.Read/Write/Handshake calls
// on one dedicated per-connection goroutine, decoupled from the event-loop
// thread by two byte queues guarded by a mutex; the event-loop-facing Read
// and Write methods never block, translating "no data queued yet" /
// "outbound queue full" into the usual ReadReady/WriteReady hints. This is
// the idiomatic Go translation of spec §4.2's "TLS (user-space crypto)" arm:
// the crypto and record framing stay in the standard library, only the
// thread model is bridged. See DESIGN.md for the tradeoff this implies for
// kTLS offload.
type TLS struct {
	rawFD int
	conn  *tls.Conn

	handshakeDone atomic.Bool
	handshakeErr  atomic.Value // error

	mu       sync.Mutex
	inbox    []byte // decrypted bytes waiting for Read
	inboxEOF bool
	inboxErr error

	outbox    []byte // plaintext bytes waiting to be handed to conn.Write
	closeOnce sync.Once
	closed    atomic.Bool

	wake chan struct{} // nudges the writer goroutine when outbox gains data
}

const tlsOutboxLimit = 1 << 20 // backpressure ceiling; spec §6 deferred-write budget governs the caller side

// NewTLS wraps fc in a tls.Conn built from cfg and starts the background
// handshake/record goroutines, which do all their I/O through fc. rawFD is
// only recorded and returned by FD, for reactor registration. Close closes
// fc without waiting for the goroutines to exit and does not close rawFD.
func NewTLS(rawFD int, fc net.Conn, cfg *tls.Config, isServer bool) *TLS {
	var conn *tls.Conn
	if isServer {
		conn = tls.Server(fc, cfg)
	} else {
		conn = tls.Client(fc, cfg)
	}
	t := &TLS{
		rawFD: rawFD,
		conn:  conn,
		wake:  make(chan struct{}, 1),
	}
	go t.readLoop()
	go t.writeLoop()
	return t
}

func (t *TLS) FD() int { return t.rawFD }

func (t *TLS) HandshakeDone() bool { return t.handshakeDone.Load() }

func (t *TLS) readLoop() {
	if err := t.conn.Handshake(); err != nil {
		t.handshakeErr.Store(err)
		t.handshakeDone.Store(true)
		t.mu.Lock()
		t.inboxErr = err
		t.mu.Unlock()
		return
	}
	t.handshakeDone.Store(true)

	buf := make([]byte, 32*1024)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			t.mu.Lock()
			t.inbox = append(t.inbox, buf[:n]...)
			t.mu.Unlock()
		}
		if err != nil {
			t.mu.Lock()
			if errors.Is(err, io.EOF) {
				t.inboxEOF = true
			} else {
				t.inboxErr = err
			}
			t.mu.Unlock()
			return
		}
	}
}

func (t *TLS) writeLoop() {
	for range t.wake {
		for {
			t.mu.Lock()
			chunk := t.outbox
			t.outbox = nil
			t.mu.Unlock()
			if len(chunk) == 0 {
				break
			}
			if _, err := t.conn.Write(chunk); err != nil {
				t.mu.Lock()
				if t.inboxErr == nil {
					t.inboxErr = err
				}
				t.mu.Unlock()
				return
			}
		}
		if t.closed.Load() {
			return
		}
	}
}

// Read drains whatever plaintext the background read goroutine has
// accumulated. It never blocks: an empty inbox with no error yet yields
// ReadReady.
func (t *TLS) Read(buf []byte) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.inbox) > 0 {
		n := copy(buf, t.inbox)
		t.inbox = t.inbox[n:]
		return Outcome{N: n, Hint: None}
	}
	if t.inboxErr != nil {
		return Outcome{N: 0, Hint: Error, Err: t.inboxErr}
	}
	if t.inboxEOF {
		return Outcome{N: 0, Hint: None}
	}
	return Outcome{N: 0, Hint: ReadReady}
}

// Write enqueues plaintext for the background write goroutine. If the
// outbox is over budget it reports WriteReady rather than growing
// unboundedly, matching the deferred-write backpressure contract every
// other Transport honors.
func (t *TLS) Write(data []byte) Outcome {
	if len(data) == 0 {
		return Outcome{N: 0, Hint: None}
	}
	t.mu.Lock()
	if len(t.outbox) >= tlsOutboxLimit {
		t.mu.Unlock()
		return Outcome{N: 0, Hint: WriteReady}
	}
	t.outbox = append(t.outbox, data...)
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return Outcome{N: len(data), Hint: None}
}

func (t *TLS) WriteV(head, body []byte) Outcome {
	if len(head) == 0 {
		return t.Write(body)
	}
	if len(body) == 0 {
		return t.Write(head)
	}
	combined := make([]byte, 0, len(head)+len(body))
	combined = append(combined, head...)
	combined = append(combined, body...)
	return t.Write(combined)
}

// ConnectionState exposes the negotiated protocol/cipher, used for ALPN
// routing to h2c/WebSocket and for the telemetry tag on the handshake
// completion event (spec §6 "ALPN negotiated protocol").
func (t *TLS) ConnectionState() tls.ConnectionState { return t.conn.ConnectionState() }

func (t *TLS) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.wake)
	})
	return t.conn.Close()
}
