package compress

import (
	"bytes"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func TestRegistryTokensIncludeAllCodecs(t *testing.T) {
	r := NewRegistry()
	tokens := r.Tokens()
	require.ElementsMatch(t, []string{"gzip", "zstd", "br"}, tokens)
}

func TestCompressGzipRoundTrips(t *testing.T) {
	r := NewRegistry()
	src := bytes.Repeat([]byte("hello world "), 100)
	out, ok, err := Compress(r, "gzip", src)
	require.NoError(t, err)
	require.True(t, ok)

	gr, err := gzip.NewReader(bytes.NewReader(out))
	require.NoError(t, err)
	decoded, err := io.ReadAll(gr)
	require.NoError(t, err)
	require.Equal(t, src, decoded)
}

func TestCompressZstdRoundTrips(t *testing.T) {
	r := NewRegistry()
	src := bytes.Repeat([]byte("zstd payload "), 100)
	out, ok, err := Compress(r, "zstd", src)
	require.NoError(t, err)
	require.True(t, ok)

	dec, err := zstd.NewReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer dec.Close()
	decoded, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, src, decoded)
}

func TestCompressBrotliRoundTrips(t *testing.T) {
	r := NewRegistry()
	src := bytes.Repeat([]byte("br payload "), 100)
	out, ok, err := Compress(r, "br", src)
	require.NoError(t, err)
	require.True(t, ok)

	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(out)))
	require.NoError(t, err)
	require.Equal(t, src, decoded)
}

func TestCompressUnknownTokenReturnsFalse(t *testing.T) {
	r := NewRegistry()
	_, ok, err := Compress(r, "compress", []byte("x"))
	require.NoError(t, err)
	require.False(t, ok)
}
