package http1

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeadersBasicGet(t *testing.T) {
	raw := []byte("GET /echo?x=1 HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n")
	var req Request
	result, status, consumed := ParseHeaders(raw, &req, 0)
	require.Equal(t, ParseOK, result)
	require.Equal(t, StatusOK, status)
	require.Equal(t, len(raw), consumed)
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "/echo", req.Path)
	require.Equal(t, "x=1", req.Query)
	require.Equal(t, HTTP11, req.Version)
	require.Equal(t, "example.com", req.Headers.Get("Host"))
}

func TestParseHeadersNeedsMoreData(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nHost: example.com\r\n")
	var req Request
	result, _, _ := ParseHeaders(raw, &req, 0)
	require.Equal(t, NeedMoreData, result)
}

func TestParseHeadersMalformedRequestLine(t *testing.T) {
	raw := []byte("GET /\r\n\r\n")
	var req Request
	result, status, _ := ParseHeaders(raw, &req, 0)
	require.Equal(t, ParseError, result)
	require.Equal(t, StatusBadRequest, status)
}

func TestParseHeadersOversizeRejected(t *testing.T) {
	big := make([]byte, DefaultMaxHeaderBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	var req Request
	result, status, _ := ParseHeaders(big, &req, 0)
	require.Equal(t, ParseError, result)
	require.Equal(t, StatusHeaderFieldsTooLarge, status)
}

func TestResolveBodyEncodingChunkedAndContentLengthConflict(t *testing.T) {
	req := &Request{
		Version: HTTP11,
		Headers: Headers{
			{Name: "Transfer-Encoding", Value: "chunked"},
			{Name: "Content-Length", Value: "10"},
		},
	}
	status, ok := ResolveBodyEncoding(req)
	require.False(t, ok)
	require.Equal(t, StatusBadRequest, status)
}

func TestResolveBodyEncodingUnknownTE(t *testing.T) {
	req := &Request{Version: HTTP11, Headers: Headers{{Name: "Transfer-Encoding", Value: "gzip"}}}
	status, ok := ResolveBodyEncoding(req)
	require.False(t, ok)
	require.Equal(t, StatusNotImplemented, status)
}

func TestResolveBodyEncodingHTTP10RejectsTE(t *testing.T) {
	req := &Request{Version: HTTP10, Headers: Headers{{Name: "Transfer-Encoding", Value: "chunked"}}}
	status, ok := ResolveBodyEncoding(req)
	require.False(t, ok)
	require.Equal(t, StatusBadRequest, status)
}

func TestDecodeIdentityBody(t *testing.T) {
	req := &Request{Encoding: BodyIdentity, ContentLength: 5}
	result, _, consumed := DecodeBody([]byte("hello extra"), req, 0)
	require.Equal(t, BodyComplete, result)
	require.Equal(t, 5, consumed)
	require.Equal(t, "hello", string(req.Body))
}

func TestDecodeIdentityBodyNeedsMore(t *testing.T) {
	req := &Request{Encoding: BodyIdentity, ContentLength: 10}
	result, _, _ := DecodeBody([]byte("short"), req, 0)
	require.Equal(t, BodyNeedMoreData, result)
}

func TestDecodeChunkedBodyWithTrailers(t *testing.T) {
	raw := []byte("4\r\nWiki\r\n5\r\npedia\r\n0\r\nX-Trail: yes\r\n\r\n")
	req := &Request{Encoding: BodyChunked}
	result, _, consumed := DecodeBody(raw, req, 0)
	require.Equal(t, BodyComplete, result)
	require.Equal(t, len(raw), consumed)
	require.Equal(t, "Wikipedia", string(req.Body))
	require.Equal(t, "yes", req.Trailers.Get("X-Trail"))
}

func TestDecodeChunkedBodyNoTrailers(t *testing.T) {
	raw := []byte("3\r\nfoo\r\n0\r\n\r\n")
	req := &Request{Encoding: BodyChunked}
	result, _, consumed := DecodeBody(raw, req, 0)
	require.Equal(t, BodyComplete, result)
	require.Equal(t, len(raw), consumed)
	require.Equal(t, "foo", string(req.Body))
}

func TestDecodeChunkedBodyIncomplete(t *testing.T) {
	raw := []byte("5\r\nfoo")
	req := &Request{Encoding: BodyChunked}
	result, _, _ := DecodeBody(raw, req, 0)
	require.Equal(t, BodyNeedMoreData, result)
}

func TestDecodeIdentityBodyOverMaxRejected(t *testing.T) {
	req := &Request{Encoding: BodyIdentity, ContentLength: 11}
	result, status, _ := DecodeBody([]byte("hello extra"), req, 10)
	require.Equal(t, BodyDecodeError, result)
	require.Equal(t, StatusPayloadTooLarge, status)
}

func TestDecodeChunkedBodyOverMaxRejected(t *testing.T) {
	raw := []byte("4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")
	req := &Request{Encoding: BodyChunked}
	result, status, _ := DecodeBody(raw, req, 4)
	require.Equal(t, BodyDecodeError, result)
	require.Equal(t, StatusPayloadTooLarge, status)
}

func TestParseHeadersRespectsConfiguredCap(t *testing.T) {
	big := make([]byte, 17)
	for i := range big {
		big[i] = 'a'
	}
	var req Request
	result, status, _ := ParseHeaders(big, &req, 16)
	require.Equal(t, ParseError, result)
	require.Equal(t, StatusHeaderFieldsTooLarge, status)
}

func TestAcceptEncodingIdentityForbiddenNoAlternative(t *testing.T) {
	_, status, ok := AcceptEncoding("identity;q=0", []string{"gzip"})
	require.False(t, ok)
	require.Equal(t, StatusNotAcceptable, status)
}

func TestAcceptEncodingPicksHighestQOffered(t *testing.T) {
	chosen, _, ok := AcceptEncoding("br;q=0.5, gzip;q=0.9", []string{"gzip", "br"})
	require.True(t, ok)
	require.Equal(t, "gzip", chosen)
}

func TestAcceptEncodingEmptyHeaderMeansIdentity(t *testing.T) {
	chosen, status, ok := AcceptEncoding("", []string{"gzip"})
	require.True(t, ok)
	require.Equal(t, StatusOK, status)
	require.Equal(t, "identity", chosen)
}

func TestResolveExpectContinue(t *testing.T) {
	require.Equal(t, ExpectContinue, ResolveExpect("100-continue", nil))
}

func TestResolveExpectUnknownDefaultsTo417(t *testing.T) {
	require.Equal(t, ExpectReject417, ResolveExpect("weird-token", nil))
}

func TestResolveExpectHandlerOverride(t *testing.T) {
	got := ResolveExpect("custom", func(tok string) ExpectAction {
		require.Equal(t, "custom", tok)
		return ExpectInterim
	})
	require.Equal(t, ExpectInterim, got)
}

func TestKeepAliveDecisionRespectsCap(t *testing.T) {
	req := &Request{Version: HTTP11}
	require.True(t, KeepAliveDecision(req, false, 5, 100, false))
	require.False(t, KeepAliveDecision(req, false, 100, 100, false))
}

func TestKeepAliveDecisionHTTP10Rejected(t *testing.T) {
	req := &Request{Version: HTTP10}
	require.False(t, KeepAliveDecision(req, false, 1, 100, false))
}

func TestKeepAliveDecisionConnectionClose(t *testing.T) {
	req := &Request{Version: HTTP11, Headers: Headers{{Name: "Connection", Value: "close"}}}
	require.False(t, KeepAliveDecision(req, false, 1, 100, false))
}

func TestKeepAliveDecisionDraining(t *testing.T) {
	req := &Request{Version: HTTP11}
	require.False(t, KeepAliveDecision(req, false, 1, 100, true))
}

func TestInvokeHandlerRecoversPanic(t *testing.T) {
	h := HandlerFunc(func(req *Request) *Response {
		panic("boom")
	})
	resp := InvokeHandler(h, &Request{})
	require.Equal(t, StatusInternalServerError, resp.Status)
}

func TestAppendResponseAddsContentLength(t *testing.T) {
	resp := &Response{Status: StatusOK, Body: []byte("hi")}
	out := AppendResponse(nil, HTTP11, resp)
	require.Contains(t, string(out), "Content-Length: 2")
	require.Contains(t, string(out), "HTTP/1.1 200 OK")
}

func TestHandleOptionsOrTraceCORSPreflight(t *testing.T) {
	req := &Request{
		Method:  "OPTIONS",
		Headers: Headers{{Name: "Origin", Value: "https://example.com"}, {Name: "Access-Control-Request-Method", Value: "POST"}},
	}
	resp, handled := HandleOptionsOrTrace(req, []string{"GET", "POST"})
	require.True(t, handled)
	require.Equal(t, Status(204), resp.Status)
	require.Equal(t, "https://example.com", resp.Headers.Get("Access-Control-Allow-Origin"))
}
