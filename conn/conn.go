// Package conn owns the per-connection state machine: the data described in
// spec §3 ("Connection"), mutated exclusively by the owning event-loop
// thread, never locked on the fast path (spec §5).
package conn

import (
	"time"

	"github.com/aeronet-go/aeronet/transport"
)

// Protocol identifies which handler, if any, owns the connection's bytes.
type Protocol int

const (
	HTTP11 Protocol = iota
	WebSocket
	HTTP2
)

// CloseMode is monotonic in severity: None < DrainThenClose < Immediate.
// Transitions only ever move forward (spec §3 "closeMode never decreases").
type CloseMode int

const (
	CloseNone CloseMode = iota
	CloseDrainThenClose
	CloseImmediate
)

// Raise advances c to mode if mode is more severe, and is a no-op otherwise.
func (c *CloseMode) Raise(mode CloseMode) {
	if mode > *c {
		*c = mode
	}
}

// ProtocolHandler is installed once a connection upgrades away from plain
// HTTP/1.1 (spec §4.7). It is intentionally an open interface - unlike
// Transport's closed three-arm variant, the set of protocols a connection
// might upgrade to is meant to be extended (WebSocket, h2c today; anything
// else tomorrow) without touching this package.
type ProtocolHandler interface {
	Kind() Protocol
	// ProcessInput is handed the entire unconsumed input buffer. It reports
	// how many bytes it consumed and what the connection should do next.
	ProcessInput(data []byte, c *Connection) (action HandlerAction, consumed int)
	HasPendingOutput() bool
	PendingOutput() []byte
	OnOutputWritten(n int)
	InitiateClose()
	OnTransportClosing()
}

// HandlerAction is ProtocolHandler.ProcessInput's verdict.
type HandlerAction int

const (
	ActionContinue HandlerAction = iota
	ActionResponseReady
	ActionUpgrade
	ActionClose
	ActionCloseImmediate
)

// Flags bundles the small per-connection booleans from spec §3.
type Flags struct {
	WaitingWritable  bool
	TLSEstablished   bool
	WaitingForBody   bool
	ConnectPending   bool
	ZerocopyRequested bool
}

// FileSendState drives the file-send engine (spec §4.4).
type FileSendState struct {
	File          FileReader
	Offset        int64
	Remaining     int64
	Active        bool
	HeadersPending bool
}

// FileReader is the minimal contract the file-send engine needs; conn never
// opens files itself, so any *os.File satisfies this via its Fd/ReadAt.
type FileReader interface {
	Fd() uintptr
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// Connection is one accepted socket's worth of state (spec §3). It is owned
// and mutated exclusively by the event-loop goroutine that created it; no
// field is ever touched concurrently, so there is no mutex here by design.
type Connection struct {
	FD int

	Transport transport.Transport

	InputBuffer    []byte
	BodyBuffer     []byte
	TunnelOrFile   []byte // raw passthrough OR TLS file-scratch; mutually exclusive use
	OutBuffer      []byte

	ZeroCopy ZeroCopyTracker

	LastActivity      time.Time
	HeaderStart       time.Time
	BodyLastActivity  time.Time

	CloseMode CloseMode
	Flags     Flags
	Protocol  Protocol
	Handler   ProtocolHandler

	FileSend *FileSendState

	PeerFD       int
	PeerStreamID int

	RequestCount int

	handshakeObserver func(established bool)
}

// New creates a Connection for a freshly accepted fd, in the Http11/None
// state spec §3's Lifecycle describes.
func New(fd int, tr transport.Transport) *Connection {
	now := time.Now()
	return &Connection{
		FD:               fd,
		Transport:        tr,
		LastActivity:     now,
		HeaderStart:      now,
		BodyLastActivity: now,
		Protocol:         HTTP11,
	}
}

// SetHandshakeObserver installs a callback invoked when TLS handshake
// completion is observed (spec §3 "optional TLS handshake observer").
func (c *Connection) SetHandshakeObserver(fn func(established bool)) {
	c.handshakeObserver = fn
}

// NotifyHandshake invokes the handshake observer, if any.
func (c *Connection) NotifyHandshake(established bool) {
	c.Flags.TLSEstablished = established
	if c.handshakeObserver != nil {
		c.handshakeObserver(established)
	}
}

// Upgrade installs a protocol handler, enforcing the invariant that
// Protocol == Http11 iff Handler == nil (spec §3).
func (c *Connection) Upgrade(p Protocol, h ProtocolHandler) {
	c.Protocol = p
	c.Handler = h
}

// CanCloseImmediately reports whether the connection may be torn down right
// now (spec §3 Lifecycle): either Immediate was requested, or it is draining
// with nothing left to flush.
func (c *Connection) CanCloseImmediately() bool {
	if c.CloseMode == CloseImmediate {
		return true
	}
	if c.CloseMode != CloseDrainThenClose {
		return false
	}
	if len(c.OutBuffer) != 0 {
		return false
	}
	if c.FileSend != nil && c.FileSend.Active {
		return false
	}
	if c.ZeroCopy.Pending() > 0 {
		return false
	}
	return true
}

// Touch records activity now, clearing idle-timeout exposure.
func (c *Connection) Touch() { c.LastActivity = time.Now() }
