package server

import (
	"github.com/aeronet-go/aeronet/http1"
	"github.com/aeronet-go/aeronet/websocket"
)

// RedirectKind is the path-normalization hint a RoutingResult may carry
// (spec §6 Router interface: "optional path-redirect indicator").
type RedirectKind int

const (
	RedirectNone RedirectKind = iota
	RedirectAddSlash
	RedirectRemoveSlash
)

// CORSPolicy is the per-route or global CORS policy a Router may attach
// (spec §6 "cors_policy ... consumed via router").
type CORSPolicy struct {
	AllowOrigin  string
	AllowMethods []string
}

// WebSocketEndpoint is what a Router returns for a route that upgrades to
// WebSocket: the endpoint-specific overrides of WebSocketConfig plus the
// message callback the handler logic drives (spec §6 "websocket ...
// per-endpoint").
type WebSocketEndpoint struct {
	Config    WebSocketConfig
	OnOpen    func(conn *WebSocketConn)
	OnMessage func(conn *WebSocketConn, opcode websocket.Opcode, payload []byte)
}

// WebSocketConn is handed to a WebSocket endpoint's OnMessage/OnOpen
// callbacks; it is the embedder-facing handle onto one upgraded connection.
type WebSocketConn struct {
	adapter *websocketAdapter
}

// Send queues a Text message for output.
func (c *WebSocketConn) Send(payload []byte) { c.adapter.sendText(payload) }

// SendBinary queues a Binary message for output.
func (c *WebSocketConn) SendBinary(payload []byte) { c.adapter.sendBinary(payload) }

// Close starts a locally-initiated close handshake.
func (c *WebSocketConn) Close(code uint16, reason string) { c.adapter.handler.InitiateClose(code, reason) }

// RoutingResult is what a Router returns for one (method, path) lookup
// (spec §6): at most one of {request handler, websocket endpoint}, plus
// middleware ranges, CORS, redirect hint, and path params.
//
// The streaming/async handler variants spec §6 also names are a deferred
// scope decision - see DESIGN.md's Open Question entry for this package;
// RoutingResult only carries the buffered Handler and WebSocket variants.
type RoutingResult struct {
	Handler   http1.Handler
	WebSocket *WebSocketEndpoint

	MethodNotAllowed bool
	AllowedMethods   []string

	Redirect RedirectKind

	PathParams map[string]string

	RequestMiddleware  []http1.Middleware
	ResponseMiddleware []func(req *http1.Request, resp *http1.Response)

	CORS *CORSPolicy
}

// Router is the interface the core only consumes (spec §6): matching
// semantics (tries, regex, whatever) are entirely the embedder's concern.
type Router interface {
	Route(method, path string) RoutingResult
}

// RouterFunc adapts a plain function to Router.
type RouterFunc func(method, path string) RoutingResult

func (f RouterFunc) Route(method, path string) RoutingResult { return f(method, path) }
