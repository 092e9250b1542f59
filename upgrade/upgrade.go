// Package upgrade validates protocol-handoff requests (spec §4.7) and
// produces the raw 101 response bytes for a successful handshake. The
// installed ProtocolHandler itself lives in the websocket and protocolh2
// packages; this package only covers the handshake validation, which is
// shared machinery the server's HTTP/1.1 pipeline drives directly.
package upgrade

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"github.com/aeronet-go/aeronet/http1"
)

const webSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// HTTP2Preface is the 24-byte prior-knowledge preface spec §4.7 names.
const HTTP2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// WebSocketRequest holds the fields the server needs out of a validated
// WebSocket upgrade request.
type WebSocketRequest struct {
	Accept      string
	Subprotocol string
	Deflate     bool
}

// ValidateWebSocket checks the handshake preconditions of spec §4.7:
// Upgrade: websocket, Connection containing "upgrade" (token match is
// permissive - empty tokens between commas are simply skipped, not treated
// as a parse error, matching real-world client header construction),
// Sec-WebSocket-Version: 13, and a key that is exactly 24 base64 characters
// ending in "==". serverProtocols is the server's preference-ordered list
// of supported subprotocols; clientOffered is what the client sent in
// Sec-WebSocket-Protocol. permessageDeflateEnabled gates compression
// negotiation.
func ValidateWebSocket(h http1.Headers, serverProtocols []string, permessageDeflateEnabled bool) (*WebSocketRequest, bool) {
	if !strings.EqualFold(h.Get("Upgrade"), "websocket") {
		return nil, false
	}
	if !hasToken(h.Get("Connection"), "upgrade") {
		return nil, false
	}
	if h.Get("Sec-WebSocket-Version") != "13" {
		return nil, false
	}
	key := h.Get("Sec-WebSocket-Key")
	if !validWebSocketKey(key) {
		return nil, false
	}

	out := &WebSocketRequest{Accept: computeAccept(key)}
	out.Subprotocol = negotiateSubprotocol(serverProtocols, h.Get("Sec-WebSocket-Protocol"))
	if permessageDeflateEnabled {
		out.Deflate = offersPermessageDeflate(h.Get("Sec-WebSocket-Extensions"))
	}
	return out, true
}

func validWebSocketKey(key string) bool {
	if len(key) != 24 || !strings.HasSuffix(key, "==") {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(key)
	return err == nil
}

func computeAccept(key string) string {
	sum := sha1.Sum([]byte(key + webSocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// negotiateSubprotocol picks the first server-preferred protocol the
// client also offered, case-insensitively (spec §4.7).
func negotiateSubprotocol(serverProtocols []string, clientHeader string) string {
	if clientHeader == "" || len(serverProtocols) == 0 {
		return ""
	}
	offered := make(map[string]bool)
	for _, tok := range strings.Split(clientHeader, ",") {
		offered[strings.ToLower(strings.TrimSpace(tok))] = true
	}
	for _, p := range serverProtocols {
		if offered[strings.ToLower(p)] {
			return p
		}
	}
	return ""
}

func offersPermessageDeflate(extensionsHeader string) bool {
	for _, ext := range strings.Split(extensionsHeader, ",") {
		name := strings.TrimSpace(ext)
		if si := strings.IndexByte(name, ';'); si >= 0 {
			name = strings.TrimSpace(name[:si])
		}
		if strings.EqualFold(name, "permessage-deflate") {
			return true
		}
	}
	return false
}

// hasToken checks whether header contains token among its comma-separated
// list, tolerating empty tokens between commas (spec §9's "Connection:
// upgrade token parsing permissiveness" decision).
func hasToken(header, token string) bool {
	for _, tok := range strings.Split(header, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if strings.EqualFold(tok, token) {
			return true
		}
	}
	return false
}

// ValidateH2C checks the h2c upgrade preconditions of spec §4.7: Upgrade:
// h2c, Connection containing both "upgrade" and "HTTP2-Settings", and a
// non-empty HTTP2-Settings header. Per spec §9's decision, only presence
// is checked here; base64url decoding of the SETTINGS payload happens in
// the protocolh2 package once the handler is installed.
func ValidateH2C(h http1.Headers) bool {
	if !strings.EqualFold(h.Get("Upgrade"), "h2c") {
		return false
	}
	conn := h.Get("Connection")
	if !hasToken(conn, "upgrade") || !hasToken(conn, "HTTP2-Settings") {
		return false
	}
	return h.Get("HTTP2-Settings") != ""
}

// IsHTTP2Preface reports whether buf begins with the prior-knowledge
// preface (spec §4.7): an exact prefix match, falling back to HTTP/1.1
// (which will typically 400) on any mismatch.
func IsHTTP2Preface(buf []byte) bool {
	return len(buf) >= len(HTTP2Preface) && string(buf[:len(HTTP2Preface)]) == HTTP2Preface
}

// WebSocketAcceptResponse builds the raw 101 response bytes (spec §4.7:
// "bypassing the normal response builder, which disallows reserved
// headers").
func WebSocketAcceptResponse(req *WebSocketRequest) []byte {
	var b []byte
	b = append(b, "HTTP/1.1 101 Switching Protocols\r\n"...)
	b = append(b, "Upgrade: websocket\r\n"...)
	b = append(b, "Connection: Upgrade\r\n"...)
	b = append(b, "Sec-WebSocket-Accept: "...)
	b = append(b, req.Accept...)
	b = append(b, "\r\n"...)
	if req.Subprotocol != "" {
		b = append(b, "Sec-WebSocket-Protocol: "...)
		b = append(b, req.Subprotocol...)
		b = append(b, "\r\n"...)
	}
	if req.Deflate {
		b = append(b, "Sec-WebSocket-Extensions: permessage-deflate\r\n"...)
	}
	b = append(b, "\r\n"...)
	return b
}

// H2CAcceptResponse builds the raw 101 response for an h2c upgrade (spec
// §4.7: "Emit a 101 response; the handler then sends its own SETTINGS").
func H2CAcceptResponse() []byte {
	return []byte("HTTP/1.1 101 Switching Protocols\r\nConnection: Upgrade\r\nUpgrade: h2c\r\n\r\n")
}
