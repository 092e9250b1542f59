package server

import (
	"bytes"
	"time"

	"github.com/aeronet-go/aeronet/compress"
	"github.com/aeronet-go/aeronet/conn"
	"github.com/aeronet-go/aeronet/http1"
	"github.com/aeronet-go/aeronet/protocolh2"
	"github.com/aeronet-go/aeronet/upgrade"
)

// advanceHTTP1 drives sc through as much of spec §4.3's pipeline as the
// currently buffered bytes allow: parse headers, decode body, route,
// dispatch (or upgrade), build and queue a response, and decide keep-alive.
// It returns true if it made forward progress (so the caller should try
// again in case a pipelined next request is already fully buffered), false
// once it is blocked on more input or the connection left HTTP/1.1.
func (s *Server) advanceHTTP1(sc *serverConn) bool {
	c := sc.c
	if c.Handler != nil {
		return false // protocol handoff already happened
	}

	if c.RequestCount == 0 && s.cfg.H2CEnabled && upgrade.IsHTTP2Preface(c.InputBuffer) {
		s.installH2C(sc)
		return false
	}

	result, status, headerConsumed := http1.ParseHeaders(c.InputBuffer, &sc.req, s.cfg.MaxHeaderBytes)
	switch result {
	case http1.NeedMoreData:
		return false
	case http1.ParseError:
		s.queueErrorAndClose(sc, status)
		return false
	}

	bodyStatus, ok := http1.ResolveBodyEncoding(&sc.req)
	if !ok {
		s.queueErrorAndClose(sc, bodyStatus)
		return false
	}

	bodyResult, bStatus, bodyConsumed := http1.DecodeBody(c.InputBuffer[headerConsumed:], &sc.req, s.cfg.MaxBodyBytes)
	switch bodyResult {
	case http1.BodyNeedMoreData:
		c.Flags.WaitingForBody = true
		c.BodyLastActivity = time.Now()
		s.maybeSendExpectContinue(sc)
		return false
	case http1.BodyDecodeError:
		s.queueErrorAndClose(sc, bStatus)
		return false
	}
	c.Flags.WaitingForBody = false
	sc.expectContinueSent = false

	totalConsumed := headerConsumed + bodyConsumed
	s.serveOneRequest(sc)
	c.InputBuffer = append(c.InputBuffer[:0], c.InputBuffer[totalConsumed:]...)
	sc.req.Reset()
	c.RequestCount++
	sc.requestsServed++
	c.HeaderStart = time.Now()
	return true
}

// maybeSendExpectContinue evaluates the Expect header of a request whose
// body is still incomplete (spec §4.3 step 7, §6 "Required acceptance" of
// Expect: 100-continue). A recognized "100-continue" queues the interim
// status line ahead of the eventual final response; an unsupported token
// is rejected with 417 and the connection drained, per
// original_source/aeronet/main/src/single-http-server.cpp's
// handleExpectHeader. The interim is sent at most once per request.
func (s *Server) maybeSendExpectContinue(sc *serverConn) {
	if sc.expectContinueSent {
		return
	}
	expect := sc.req.Headers.Get("Expect")
	if expect == "" {
		return
	}
	switch http1.ResolveExpect(expect, nil) {
	case http1.ExpectContinue:
		sc.c.OutBuffer = append(sc.c.OutBuffer, "HTTP/1.1 100 Continue\r\n\r\n"...)
		sc.expectContinueSent = true
	case http1.ExpectReject417:
		s.queueErrorAndClose(sc, http1.StatusExpectationFailed)
	}
}

// serveOneRequest handles one fully-decoded request: upgrade detection,
// routing, middleware, compression, and keep-alive bookkeeping.
func (s *Server) serveOneRequest(sc *serverConn) {
	c := sc.c
	req := &sc.req

	rr := s.router.Route(req.Method, req.Path)

	serverProtocols := s.cfg.WebSocket.Subprotocols
	if rr.WebSocket != nil && len(rr.WebSocket.Config.Subprotocols) > 0 {
		serverProtocols = rr.WebSocket.Config.Subprotocols
	}
	if ws, ok := upgrade.ValidateWebSocket(req.Headers, serverProtocols, s.cfg.WebSocket.Deflate); ok {
		if rr.WebSocket != nil {
			s.installWebSocket(sc, rr, ws)
			return
		}
	}

	if s.cfg.H2CEnabled && upgrade.ValidateH2C(req.Headers) {
		s.installH2C(sc)
		return
	}

	if resp, handled := http1.HandleOptionsOrTrace(req, rr.AllowedMethods); handled {
		s.queueResponse(sc, resp)
		return
	}

	if rr.MethodNotAllowed {
		resp := http1.ErrorResponse(405)
		s.queueResponse(sc, resp)
		return
	}

	if rr.Handler == nil {
		s.queueResponse(sc, http1.ErrorResponse(404))
		return
	}

	if resp := http1.RunMiddlewareChain(rr.RequestMiddleware, req); resp != nil {
		s.queueResponse(sc, resp)
		return
	}

	resp := http1.InvokeHandler(rr.Handler, req)
	if resp == nil {
		resp = http1.ErrorResponse(500)
	}

	for _, mw := range rr.ResponseMiddleware {
		mw(req, resp)
	}

	s.applyCompression(req, resp)
	s.queueResponse(sc, resp)
}

// applyCompression negotiates Accept-Encoding and compresses resp.Body in
// place when the response is large enough and the codec is available
// (spec §6 "compression ... per-codec level and minimum-response-size
// threshold").
func (s *Server) applyCompression(req *http1.Request, resp *http1.Response) {
	if !s.cfg.Compression.Enabled || resp.Raw != nil {
		return
	}
	if len(resp.Body) < s.cfg.Compression.MinResponseBytes {
		return
	}
	if resp.Headers.Has("Content-Encoding") {
		return
	}
	token, status, ok := http1.AcceptEncoding(req.Headers.Get("Accept-Encoding"), s.cfg.Codecs.Tokens())
	if !ok {
		resp.Status = status
		resp.Body = nil
		return
	}
	if token == "identity" {
		return
	}
	encoded, found, err := compress.Compress(s.cfg.Codecs, token, resp.Body)
	if err != nil || !found {
		return
	}
	resp.Body = encoded
	resp.Headers = append(resp.Headers, http1.Header{Name: "Content-Encoding", Value: token})
	resp.Headers = stripHeader(resp.Headers, "Content-Length")
}

func stripHeader(h http1.Headers, name string) http1.Headers {
	out := h[:0]
	for _, f := range h {
		if !equalFoldHeaderName(f.Name, name) {
			out = append(out, f)
		}
	}
	return out
}

func equalFoldHeaderName(a, b string) bool {
	return bytes.EqualFold([]byte(a), []byte(b))
}

// queueResponse appends the global headers (spec §6 "global_headers ...
// appended to every response"), serializes resp, decides keep-alive, and
// appends Connection: close if the connection should not persist.
func (s *Server) queueResponse(sc *serverConn, resp *http1.Response) {
	c := sc.c
	req := &sc.req

	if resp.Raw == nil {
		resp.Headers = append(resp.Headers, s.cfg.GlobalHeaders...)
	}

	keepAlive := s.cfg.EnableKeepAlive &&
		http1.KeepAliveDecision(req, resp.Raw == nil && resp.Headers.Has("Connection") && equalFoldValue(resp.Headers.Get("Connection"), "close"),
			sc.requestsServed+1, s.cfg.MaxRequestsPerConnection, s.draining())

	if resp.Raw == nil && !keepAlive {
		resp.Headers = append(resp.Headers, http1.Header{Name: "Connection", Value: "close"})
	}

	c.OutBuffer = http1.AppendResponse(c.OutBuffer, req.Version, resp)

	if !keepAlive {
		c.CloseMode.Raise(conn.CloseDrainThenClose)
	}
}

func equalFoldValue(a, b string) bool { return bytes.EqualFold([]byte(a), []byte(b)) }

func (s *Server) queueErrorAndClose(sc *serverConn, status http1.Status) {
	resp := http1.ErrorResponse(status)
	sc.c.OutBuffer = http1.AppendResponse(sc.c.OutBuffer, sc.req.Version, resp)
	sc.c.CloseMode.Raise(conn.CloseDrainThenClose)
	sc.c.InputBuffer = sc.c.InputBuffer[:0]
}

func (s *Server) installWebSocket(sc *serverConn, rr RoutingResult, ws *upgrade.WebSocketRequest) {
	c := sc.c
	wsCfg := s.cfg.WebSocket
	if rr.WebSocket.Config.MaxMessageBytes != 0 || rr.WebSocket.Config.CloseTimeout != 0 {
		wsCfg = rr.WebSocket.Config
	}
	a := newWebSocketAdapter(wsCfg, rr.WebSocket.OnMessage)
	sc.ws = a
	c.Upgrade(conn.WebSocket, a)
	c.OutBuffer = append(c.OutBuffer, upgrade.WebSocketAcceptResponse(ws)...)
	if rr.WebSocket.OnOpen != nil {
		rr.WebSocket.OnOpen(a.exposed)
	}
}

func (s *Server) installH2C(sc *serverConn) {
	c := sc.c
	settings, _ := protocolh2.DecodeSettings(sc.req.Headers.Get("HTTP2-Settings"))
	h := protocolh2.NewHandler(settings, nil)
	c.Upgrade(conn.HTTP2, h)
	c.OutBuffer = append(c.OutBuffer, upgrade.H2CAcceptResponse()...)
}

func (s *Server) draining() bool {
	return s.state() == StateDraining
}
