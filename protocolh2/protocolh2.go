// Package protocolh2 installs as a conn.ProtocolHandler once an h2c upgrade
// or an HTTP/2 prior-knowledge preface has been validated (spec §4.7: "the
// core only detects upgrade/preface ... the core does not implement
// HPACK/frame parsing, only enough to detect and forward"). It decodes the
// HTTP2-Settings header deferred from upgrade.ValidateH2C and then forwards
// all further bytes untouched; a real frame/HPACK engine is explicitly out
// of scope (spec Non-goals).
package protocolh2

import (
	"encoding/base64"

	"github.com/aeronet-go/aeronet/conn"
	"golang.org/x/net/http2"
)

// NextProtoTLS is the ALPN token negotiated for HTTP/2 over TLS (spec §6
// "alpn" candidates), re-exported from golang.org/x/net/http2 rather than
// hand-copied, so a config that lists "h2" stays in lockstep with the
// standard library's own ALPN plumbing.
const NextProtoTLS = http2.NextProtoTLS

// DecodeSettings base64url-decodes the HTTP2-Settings header payload (spec
// §9's deferred half of h2c validation). It does not parse the resulting
// SETTINGS frame payload itself - only forwarding is implemented - but a
// decode failure is still a protocol error the caller should reject with.
func DecodeSettings(header string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(header)
}

// Handler is a minimal conn.ProtocolHandler that forwards all bytes to and
// from an external HTTP/2 engine supplied by the embedder (spec §4.7: "the
// core ... forwards bytes to an external collaborator"); this package
// itself never parses frames.
type Handler struct {
	settings []byte

	forward func(data []byte) (consumed int)
	out     []byte

	closing bool
}

// NewHandler installs a handler that has already validated an upgrade or
// preface, with settings decoded from the HTTP2-Settings header (nil for a
// prior-knowledge preface connection, which carries no such header).
// forward is invoked with every byte that arrives once the handler is
// installed, and should return how many bytes it consumed; any bytes it
// declines are re-delivered on the next call once more data arrives.
func NewHandler(settings []byte, forward func(data []byte) (consumed int)) *Handler {
	return &Handler{settings: settings, forward: forward}
}

func (h *Handler) Kind() conn.Protocol { return conn.HTTP2 }

func (h *Handler) ProcessInput(data []byte, c *conn.Connection) (conn.HandlerAction, int) {
	if h.closing {
		return conn.ActionClose, 0
	}
	if h.forward == nil {
		return conn.ActionContinue, len(data)
	}
	n := h.forward(data)
	return conn.ActionContinue, n
}

// QueueOutput lets the external HTTP/2 engine hand this handler bytes to
// splice onto the connection's output path (the same PendingOutput contract
// every ProtocolHandler exposes, spec §4.7).
func (h *Handler) QueueOutput(b []byte) { h.out = append(h.out, b...) }

func (h *Handler) HasPendingOutput() bool { return len(h.out) > 0 }
func (h *Handler) PendingOutput() []byte  { return h.out }
func (h *Handler) OnOutputWritten(n int)  { h.out = h.out[n:] }

func (h *Handler) InitiateClose()      { h.closing = true }
func (h *Handler) OnTransportClosing() { h.closing = true }

// Settings returns the decoded HTTP2-Settings payload, or nil for a
// prior-knowledge connection.
func (h *Handler) Settings() []byte { return h.settings }
