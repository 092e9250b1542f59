package tlsconfig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestValidateRequiresCertSource(t *testing.T) {
	c := &Config{}
	err := c.Validate()
	require.Error(t, err)
}

func TestValidateRejectsMinGreaterThanMax(t *testing.T) {
	c := &Config{
		Certificates: []tls.Certificate{selfSigned(t)},
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS12,
	}
	err := c.Validate()
	require.Error(t, err)
}

func TestBuildAppliesCipherPolicy(t *testing.T) {
	c := &Config{
		Certificates: []tls.Certificate{selfSigned(t)},
		CipherPolicy: CipherModern,
	}
	ctx, err := c.Build()
	require.NoError(t, err)
	require.NotEmpty(t, ctx.Acquire().CipherSuites)
}

func TestContextRefCounting(t *testing.T) {
	c := &Config{Certificates: []tls.Certificate{selfSigned(t)}}
	ctx, err := c.Build()
	require.NoError(t, err)

	ctx.Acquire()
	ctx.Acquire()
	require.Equal(t, 2, ctx.RefCount())
	ctx.Release()
	require.Equal(t, 1, ctx.RefCount())
}

func TestTicketStoreRotatesAndEvicts(t *testing.T) {
	ts := newTicketStore(SessionTicketConfig{MaxKeys: 2})
	var k1, k2, k3 [32]byte
	k1[0], k2[0], k3[0] = 1, 2, 3
	ts.Rotate(k1)
	ts.Rotate(k2)
	ts.Rotate(k3)
	keys := ts.Keys()
	require.Len(t, keys, 2)
	require.Equal(t, k3, keys[0])
	require.Equal(t, k2, keys[1])
}
