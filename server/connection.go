package server

import (
	"time"

	"github.com/aeronet-go/aeronet/conn"
	"github.com/aeronet-go/aeronet/http1"
)

// serverConn bundles the shared conn.Connection state machine with the
// HTTP/1.1 pipeline's reusable Request object and the per-connection
// bookkeeping the server package itself needs (spec §3: the Connection
// type owns transport/buffers/timers; everything protocol-pipeline-shaped
// lives one layer up, same split as the teacher's own layering of
// low-level state vs. driving logic).
type serverConn struct {
	c   *conn.Connection
	req http1.Request

	requestsServed int

	expectContinueSent bool

	ws *websocketAdapter

	remoteAddr     string
	handshakeStart time.Time
	handshakeDone  bool
}

func newServerConn(cnx *conn.Connection, remoteAddr string) *serverConn {
	sc := &serverConn{c: cnx, remoteAddr: remoteAddr, handshakeStart: time.Now()}
	sc.req.Reset()
	return sc
}
