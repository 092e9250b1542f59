package http1

import (
	"bytes"
	"strconv"
)

// ParseResult is the header parser's verdict (spec §4.3 step 3).
type ParseResult int

const (
	NeedMoreData ParseResult = iota
	ParseOK
	ParseError
)

// Status is a subset of HTTP status codes the parser/pipeline can produce
// directly, independent of whatever a handler later returns.
type Status int

const (
	StatusOK                  Status = 200
	StatusBadRequest          Status = 400
	StatusRequestTimeout      Status = 408
	StatusExpectationFailed   Status = 417
	StatusPayloadTooLarge     Status = 413
	StatusURITooLong          Status = 414
	StatusHeaderFieldsTooLarge Status = 431
	StatusNotAcceptable       Status = 406
	StatusNotImplemented      Status = 501
	StatusInternalServerError Status = 500
)

// DefaultMaxHeaderBytes is the fallback cap (spec §4.3 "8KiB cap -> 431")
// used when a caller passes maxHeaderBytes<=0.
const DefaultMaxHeaderBytes = 8 * 1024

// ParseHeaders looks for a complete request line + header block (terminated
// by a bare CRLF) within buf. It never partially consumes: on NeedMoreData
// or ParseError the caller's buffer is untouched; on ParseOK, consumed is
// the number of bytes of buf occupied by the request line and headers
// (including the terminating CRLFCRLF), and the decoded fields are written
// into req. maxHeaderBytes is the configured cap (server.Config.MaxHeaderBytes)
// that triggers the 431 decision while the terminator hasn't arrived yet;
// DefaultMaxHeaderBytes is used if it is <= 0.
func ParseHeaders(buf []byte, req *Request, maxHeaderBytes int) (result ParseResult, status Status, consumed int) {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		if len(buf) > maxHeaderBytes {
			return ParseError, StatusHeaderFieldsTooLarge, 0
		}
		return NeedMoreData, 0, 0
	}
	headBlock := buf[:idx]
	consumed = idx + 4

	lineEnd := bytes.Index(headBlock, []byte("\r\n"))
	var requestLine []byte
	var headerLines []byte
	if lineEnd < 0 {
		requestLine = headBlock
	} else {
		requestLine = headBlock[:lineEnd]
		headerLines = headBlock[lineEnd+2:]
	}

	method, path, query, version, ok := parseRequestLine(requestLine)
	if !ok {
		return ParseError, StatusBadRequest, 0
	}
	if len(requestLine) > 8192 {
		return ParseError, StatusURITooLong, 0
	}

	req.Method = method
	req.Path = path
	req.Query = query
	req.Version = version
	req.Headers = req.Headers[:0]

	for _, line := range splitCRLF(headerLines) {
		if len(line) == 0 {
			continue
		}
		name, value, ok := parseHeaderLine(line)
		if !ok {
			return ParseError, StatusBadRequest, 0
		}
		req.Headers = append(req.Headers, Header{Name: name, Value: value})
	}

	return ParseOK, StatusOK, consumed
}

func parseRequestLine(line []byte) (method, path, query string, version Version, ok bool) {
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) != 3 {
		return "", "", "", 0, false
	}
	method = string(parts[0])
	target := parts[1]
	if qi := bytes.IndexByte(target, '?'); qi >= 0 {
		path = string(target[:qi])
		query = string(target[qi+1:])
	} else {
		path = string(target)
	}
	switch string(parts[2]) {
	case "HTTP/1.1":
		version = HTTP11
	case "HTTP/1.0":
		version = HTTP10
	default:
		return "", "", "", 0, false
	}
	if method == "" || path == "" {
		return "", "", "", 0, false
	}
	return method, path, query, version, true
}

func parseHeaderLine(line []byte) (name, value string, ok bool) {
	ci := bytes.IndexByte(line, ':')
	if ci <= 0 {
		return "", "", false
	}
	name = string(bytes.TrimSpace(line[:ci]))
	value = string(bytes.TrimSpace(line[ci+1:]))
	if name == "" {
		return "", "", false
	}
	return name, value, true
}

func splitCRLF(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}
	return bytes.Split(b, []byte("\r\n"))
}

// ResolveBodyEncoding applies spec §4.3 step 4's validation rules: HTTP/1.0
// rejects Transfer-Encoding; chunked + Content-Length together is a 400;
// an unrecognized Transfer-Encoding token is 501.
func ResolveBodyEncoding(req *Request) (Status, bool) {
	te := req.Headers.Get("Transfer-Encoding")
	cl := req.Headers.Get("Content-Length")

	if te != "" {
		if req.Version == HTTP10 {
			return StatusBadRequest, false
		}
		if !asciiEqualFold(te, "chunked") {
			return StatusNotImplemented, false
		}
		if cl != "" {
			return StatusBadRequest, false
		}
		req.Encoding = BodyChunked
		req.ContentLength = -1
		return StatusOK, true
	}

	if cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return StatusBadRequest, false
		}
		req.ContentLength = n
		if n == 0 {
			req.Encoding = BodyNone
		} else {
			req.Encoding = BodyIdentity
		}
		return StatusOK, true
	}

	req.Encoding = BodyNone
	req.ContentLength = 0
	return StatusOK, true
}
