//go:build linux

package transport

import (
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func dupNonblocking(t *testing.T, c net.Conn) int {
	t.Helper()
	tc, ok := c.(*net.TCPConn)
	require.True(t, ok)
	f, err := tc.File() // File() dup()s the fd and sets it blocking; we flip it back.
	require.NoError(t, err)
	fd := int(f.Fd())
	require.NoError(t, setNonblock(fd))
	return fd
}

func TestPlainReadWriteRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	serverConn, err := ln.Accept()
	require.NoError(t, err)
	defer serverConn.Close()

	serverFD := dupNonblocking(t, serverConn)
	p := NewPlain(serverFD)
	defer p.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	var buf [64]byte
	require.Eventually(t, func() bool {
		out := p.Read(buf[:])
		return out.N > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPlainWriteReturnsWriteReadyOnEAGAINNever(t *testing.T) {
	// A small, unblocked write on a healthy socket should complete fully
	// with Hint None rather than ever reporting an error.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	serverConn, err := ln.Accept()
	require.NoError(t, err)
	defer serverConn.Close()

	fd := dupNonblocking(t, serverConn)
	p := NewPlain(fd)
	defer p.Close()

	out := p.Write([]byte("pong"))
	require.Equal(t, None, out.Hint)
	require.Equal(t, 4, out.N)
}

func TestTLSBridgeHandshakeAndRoundTrip(t *testing.T) {
	cert := generateSelfSignedForTest(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	clientCfg := &tls.Config{InsecureSkipVerify: true}

	acceptedCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		acceptedCh <- c
	}()

	clientRaw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer clientRaw.Close()

	serverRaw := <-acceptedCh
	defer serverRaw.Close()

	fd := dupNonblocking(t, serverRaw)
	tr := NewTLS(fd, serverRaw, serverCfg, true)
	defer tr.Close()

	clientConn := tls.Client(clientRaw, clientCfg)
	require.NoError(t, clientConn.Handshake())

	_, err = clientConn.Write([]byte("hello-tls"))
	require.NoError(t, err)

	var buf [64]byte
	require.Eventually(t, func() bool {
		out := tr.Read(buf[:])
		return out.N > 0
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return tr.HandshakeDone() }, time.Second, 5*time.Millisecond)
}
