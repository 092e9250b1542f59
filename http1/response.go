package http1

import "strconv"

// Response is built by the handler/middleware chain and serialized by
// AppendResponse into the connection's outbound buffer.
type Response struct {
	Status  Status
	Reason  string
	Headers Headers
	Body    []byte

	// Raw bypasses the normal response builder entirely (spec §4.7: the
	// WebSocket 101 response is emitted raw because the builder disallows
	// reserved headers like Upgrade/Connection).
	Raw []byte
}

var reasonPhrases = map[Status]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	406: "Not Acceptable",
	408: "Request Timeout",
	409: "Conflict",
	413: "Payload Too Large",
	414: "URI Too Long",
	417: "Expectation Failed",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
}

func ReasonPhrase(s Status) string {
	if r, ok := reasonPhrases[s]; ok {
		return r
	}
	return "Unknown"
}

// AppendResponse serializes resp onto dst (typically the connection's
// OutBuffer) in wire format, adding Content-Length when Body is set and
// no existing Content-Length/Transfer-Encoding header is present.
func AppendResponse(dst []byte, version Version, resp *Response) []byte {
	if resp.Raw != nil {
		return append(dst, resp.Raw...)
	}

	v := "HTTP/1.1"
	if version == HTTP10 {
		v = "HTTP/1.0"
	}
	dst = append(dst, v...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(resp.Status), 10)
	dst = append(dst, ' ')
	reason := resp.Reason
	if reason == "" {
		reason = ReasonPhrase(resp.Status)
	}
	dst = append(dst, reason...)
	dst = append(dst, '\r', '\n')

	hasCL := resp.Headers.Has("Content-Length")
	hasTE := resp.Headers.Has("Transfer-Encoding")
	for _, h := range resp.Headers {
		dst = appendHeaderLine(dst, h.Name, h.Value)
	}
	if !hasCL && !hasTE {
		dst = appendHeaderLine(dst, "Content-Length", strconv.Itoa(len(resp.Body)))
	}
	dst = append(dst, '\r', '\n')
	dst = append(dst, resp.Body...)
	return dst
}

func appendHeaderLine(dst []byte, name, value string) []byte {
	dst = append(dst, name...)
	dst = append(dst, ':', ' ')
	dst = append(dst, value...)
	dst = append(dst, '\r', '\n')
	return dst
}

// ErrorResponse builds a minimal response for a pipeline-level error (spec
// §4.3's "malformed -> queue error response, set DrainThenClose, stop").
func ErrorResponse(status Status) *Response {
	body := []byte(ReasonPhrase(status))
	return &Response{
		Status:  status,
		Headers: Headers{{Name: "Connection", Value: "close"}, {Name: "Content-Type", Value: "text/plain; charset=utf-8"}},
		Body:    body,
	}
}
