//go:build linux

package server

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aeronet-go/aeronet/http1"
)

// freePort grabs an ephemeral port via the stdlib, then releases it
// immediately so StartWorkers's raw listeners can bind it with
// SO_REUSEPORT.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestWorkersShareOneReusePortListener(t *testing.T) {
	port := freePort(t)
	router := RouterFunc(func(method, path string) RoutingResult {
		return RoutingResult{Handler: http1.HandlerFunc(func(req *http1.Request) *http1.Response {
			return &http1.Response{Status: 200, Body: []byte("ok")}
		})}
	})

	w, err := StartWorkers(Config{Port: port, NumWorkers: 3, EnableKeepAlive: true}, router)
	require.NoError(t, err)
	t.Cleanup(func() {
		w.Stop()
		_ = w.Wait()
	})

	bound, err := w.Port()
	require.NoError(t, err)
	require.Equal(t, port, bound)

	for i := 0; i < 5; i++ {
		c, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
		require.NoError(t, err)
		_, err = c.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
		require.NoError(t, err)
		buf := make([]byte, 512)
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := c.Read(buf)
		require.NoError(t, err)
		require.Contains(t, string(buf[:n]), "200")
		c.Close()
	}
}

func TestWorkersBeginDrain(t *testing.T) {
	port := freePort(t)
	router := RouterFunc(func(method, path string) RoutingResult { return RoutingResult{} })

	w, err := StartWorkers(Config{Port: port, NumWorkers: 2}, router)
	require.NoError(t, err)
	t.Cleanup(func() {
		w.Stop()
		_ = w.Wait()
	})

	_, err = w.Port()
	require.NoError(t, err)

	w.BeginDrain(200 * time.Millisecond)
}
