package http1

import (
	"bytes"
	"strconv"
)

// BodyDecodeResult reports how far DecodeBody got.
type BodyDecodeResult int

const (
	BodyNeedMoreData BodyDecodeResult = iota
	BodyComplete
	BodyDecodeError
)

// DefaultMaxBodyBytes is the fallback cap (spec §6 max_body_bytes) used
// when a caller passes maxBodyBytes<=0.
const DefaultMaxBodyBytes = 10 << 20

// DecodeBody decodes req's body out of buf according to req.Encoding,
// appending fully decoded bytes to req.Body and any trailer fields to
// req.Trailers. consumed is how many bytes of buf were used; it is only
// meaningful when the result is BodyComplete (spec §4.3 step 8: "identity
// with Content-Length, or chunked with full 0-size terminator + trailers").
// maxBodyBytes is the configured cap (server.Config.MaxBodyBytes); a body
// that would exceed it yields BodyDecodeError/StatusPayloadTooLarge instead
// of buffering further (spec §6/§7/§8 "413").
func DecodeBody(buf []byte, req *Request, maxBodyBytes int64) (result BodyDecodeResult, status Status, consumed int) {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	switch req.Encoding {
	case BodyNone:
		return BodyComplete, StatusOK, 0
	case BodyIdentity:
		return decodeIdentity(buf, req, maxBodyBytes)
	case BodyChunked:
		return decodeChunked(buf, req, maxBodyBytes)
	default:
		return BodyComplete, StatusOK, 0
	}
}

func decodeIdentity(buf []byte, req *Request, maxBodyBytes int64) (BodyDecodeResult, Status, int) {
	if req.ContentLength > maxBodyBytes {
		return BodyDecodeError, StatusPayloadTooLarge, 0
	}
	want := int(req.ContentLength)
	if len(buf) < want {
		return BodyNeedMoreData, 0, 0
	}
	req.Body = append(req.Body[:0], buf[:want]...)
	return BodyComplete, StatusOK, want
}

// decodeChunked implements RFC 7230 §4.1's chunked transfer coding:
// repeated "<hex-size>[;ext]\r\n<data>\r\n" segments terminated by a
// zero-size chunk, optional trailer fields, and a final CRLF.
func decodeChunked(buf []byte, req *Request, maxBodyBytes int64) (BodyDecodeResult, Status, int) {
	// Re-decoded from the start of buf on every call (the pipeline always
	// passes the full accumulated body-section bytes), so reset rather than
	// append onto a previous partial attempt.
	req.Body = req.Body[:0]
	req.Trailers = req.Trailers[:0]
	pos := 0
	for {
		lineEnd := bytes.Index(buf[pos:], []byte("\r\n"))
		if lineEnd < 0 {
			return BodyNeedMoreData, 0, 0
		}
		sizeLine := buf[pos : pos+lineEnd]
		if si := bytes.IndexByte(sizeLine, ';'); si >= 0 {
			sizeLine = sizeLine[:si]
		}
		size, err := strconv.ParseUint(string(bytes.TrimSpace(sizeLine)), 16, 64)
		if err != nil {
			return BodyDecodeError, StatusBadRequest, 0
		}
		pos += lineEnd + 2

		if size == 0 {
			// Trailer section: zero or more header lines, then a final
			// CRLF terminator.
			// A bare terminator means no trailers; checked first so bytes
			// of a pipelined next request are never read as trailers.
			if bytes.HasPrefix(buf[pos:], []byte("\r\n")) {
				pos += 2
				return BodyComplete, StatusOK, pos
			}
			trailerEnd := bytes.Index(buf[pos:], []byte("\r\n\r\n"))
			if trailerEnd < 0 {
				return BodyNeedMoreData, 0, 0
			}
			trailerBlock := buf[pos : pos+trailerEnd]
			for _, line := range splitCRLF(trailerBlock) {
				if len(line) == 0 {
					continue
				}
				name, value, ok := parseHeaderLine(line)
				if !ok {
					return BodyDecodeError, StatusBadRequest, 0
				}
				req.Trailers = append(req.Trailers, Header{Name: name, Value: value})
			}
			pos += trailerEnd + 4
			return BodyComplete, StatusOK, pos
		}

		if int64(len(req.Body))+int64(size) > maxBodyBytes {
			return BodyDecodeError, StatusPayloadTooLarge, 0
		}

		need := int(size) + 2 // data + trailing CRLF
		if len(buf)-pos < need {
			return BodyNeedMoreData, 0, 0
		}
		if !bytes.HasPrefix(buf[pos+int(size):], []byte("\r\n")) {
			return BodyDecodeError, StatusBadRequest, 0
		}
		req.Body = append(req.Body, buf[pos:pos+int(size)]...)
		pos += need
	}
}
