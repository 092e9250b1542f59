// Package compress implements the response-body compression codecs spec §1
// treats as "external collaborators": gzip, zstd (klauspost/compress, the
// way rclone-rclone's backend/compress package wraps it) and brotli
// (andybalholm/brotli), picked by http1.AcceptEncoding's negotiated token.
package compress

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses a full response body in one shot. The reactor never
// streams compression mid-response (spec §1 Non-goals: bodies are buffered
// before a codec runs), so Encode takes the whole payload and returns the
// whole compressed result.
type Codec interface {
	// Name is the Content-Encoding token this codec produces.
	Name() string
	Encode(dst io.Writer, src []byte) error
}

// Registry maps negotiated Accept-Encoding tokens to codecs.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry builds the default registry: gzip, zstd, br.
func NewRegistry() *Registry {
	r := &Registry{codecs: map[string]Codec{}}
	r.Register(gzipCodec{})
	r.Register(zstdCodec{})
	r.Register(brotliCodec{})
	return r
}

func (r *Registry) Register(c Codec) { r.codecs[c.Name()] = c }

// Lookup returns the codec for a negotiated token, or nil/false if this
// registry does not implement it (including "identity", which callers
// should special-case before consulting the registry at all).
func (r *Registry) Lookup(token string) (Codec, bool) {
	c, ok := r.codecs[token]
	return c, ok
}

// Tokens lists the Content-Encoding tokens this registry can produce, for
// building the Accept-Encoding negotiation candidate set (http1.AcceptEncoding).
func (r *Registry) Tokens() []string {
	out := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		out = append(out, name)
	}
	return out
}

// Compress is a convenience wrapper: look up token, encode src, return the
// compressed bytes.
func Compress(r *Registry, token string, src []byte) ([]byte, bool, error) {
	c, ok := r.Lookup(token)
	if !ok {
		return nil, false, nil
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf, src); err != nil {
		return nil, true, err
	}
	return buf.Bytes(), true, nil
}

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }

func (gzipCodec) Encode(dst io.Writer, src []byte) error {
	w, err := gzip.NewWriterLevel(dst, gzip.DefaultCompression)
	if err != nil {
		return err
	}
	if _, err := w.Write(src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) Encode(dst io.Writer, src []byte) error {
	w, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := w.Write(src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

type brotliCodec struct{}

func (brotliCodec) Name() string { return "br" }

func (brotliCodec) Encode(dst io.Writer, src []byte) error {
	w := brotli.NewWriterLevel(dst, brotli.DefaultCompression)
	if _, err := w.Write(src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
