package http1

import (
	"fmt"
	"strings"
)

// Handler serves a fully-decoded request and returns the response to queue
// (spec §4.3 step 13, buffered variant). This is the only handler variant;
// there is no streaming or async handler type.
type Handler interface {
	Serve(req *Request) *Response
}

type HandlerFunc func(req *Request) *Response

func (f HandlerFunc) Serve(req *Request) *Response { return f(req) }

// Middleware may short-circuit the pipeline by returning a non-nil
// Response (spec §4.3 step 12).
type Middleware func(req *Request) *Response

// InvokeHandler runs h, recovering from a panic and mapping it to a 500
// (spec §4.3 step 13: "Exceptions are caught and mapped to 500").
func InvokeHandler(h Handler, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = ErrorResponse(StatusInternalServerError)
			resp.Body = []byte(fmt.Sprintf("internal error: %v", r))
		}
	}()
	return h.Serve(req)
}

// RunMiddlewareChain applies each middleware in order, stopping at the
// first short-circuit response.
func RunMiddlewareChain(chain []Middleware, req *Request) *Response {
	for _, m := range chain {
		if resp := m(req); resp != nil {
			return resp
		}
	}
	return nil
}

// KeepAliveDecision implements spec §4.3 step 15: keep-alive is respected
// only if HTTP/1.1, Connection: close is absent, the per-connection request
// count is below the configured cap, the server is not draining, and no
// close has already been requested.
func KeepAliveDecision(req *Request, connectionCloseRequested bool, requestCount, maxRequestsPerConnection int, draining bool) bool {
	if req.Version != HTTP11 {
		return false
	}
	if hasConnectionToken(req.Headers.Get("Connection"), "close") {
		return false
	}
	if maxRequestsPerConnection > 0 && requestCount >= maxRequestsPerConnection {
		return false
	}
	if draining {
		return false
	}
	if connectionCloseRequested {
		return false
	}
	return true
}

func hasConnectionToken(header, token string) bool {
	for _, tok := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), token) {
			return true
		}
	}
	return false
}

// IsCORSPreflight reports whether req looks like a CORS preflight request
// (spec §4.3 step 11): an OPTIONS request carrying both Origin and
// Access-Control-Request-Method.
func IsCORSPreflight(req *Request) bool {
	return strings.EqualFold(req.Method, "OPTIONS") &&
		req.Headers.Get("Origin") != "" &&
		req.Headers.Get("Access-Control-Request-Method") != ""
}

// HandleOptionsOrTrace implements the RFC 7231 §4.3 default behavior for
// OPTIONS/TRACE when no route claims the method explicitly (spec §4.3 step
// 11). routedMethods lists the methods the matched route (if any) actually
// supports, used to populate the Allow header.
func HandleOptionsOrTrace(req *Request, routedMethods []string) (resp *Response, handled bool) {
	switch {
	case IsCORSPreflight(req):
		return &Response{
			Status: 204,
			Headers: Headers{
				{Name: "Access-Control-Allow-Origin", Value: req.Headers.Get("Origin")},
				{Name: "Access-Control-Allow-Methods", Value: strings.Join(routedMethods, ", ")},
				{Name: "Content-Length", Value: "0"},
			},
		}, true
	case strings.EqualFold(req.Method, "OPTIONS"):
		return &Response{
			Status:  204,
			Headers: Headers{{Name: "Allow", Value: strings.Join(routedMethods, ", ")}},
		}, true
	case strings.EqualFold(req.Method, "TRACE"):
		return &Response{
			Status:  StatusOK,
			Headers: Headers{{Name: "Content-Type", Value: "message/http"}},
			Body:    req.Body,
		}, true
	default:
		return nil, false
	}
}
