//go:build linux

package transport

import (
	"golang.org/x/sys/unix"
)

// Plain is the direct socket transport: unix.Read/Write/Writev on a
// non-blocking fd, with optional MSG_ZEROCOPY sends. Grounded on spec §4.2
// "Plain (direct send/recv with optional MSG_ZEROCOPY)" and on the raw-fd
// technique other_examples/iqhive-go-proxyproto's zero_copy_epoll_linux.go
// uses to reach below net.Conn.
type Plain struct {
	fd            int
	zeroCopyOn    bool
	zeroCopyNext  uint32 // next sequence to be issued by a zerocopy sendmsg
}

// NewPlain wraps an already-nonblocking fd.
func NewPlain(fd int) *Plain { return &Plain{fd: fd} }

func (p *Plain) FD() int { return p.fd }

func (p *Plain) HandshakeDone() bool { return true }

func (p *Plain) Read(buf []byte) Outcome {
	n, err := unix.Read(p.fd, buf)
	if err == nil {
		if n == 0 {
			// Peer performed an orderly shutdown.
			return Outcome{N: 0, Hint: None}
		}
		return Outcome{N: n, Hint: None}
	}
	switch err {
	case unix.EAGAIN:
		return Outcome{N: 0, Hint: ReadReady}
	case unix.EINTR:
		return Outcome{N: 0, Hint: ReadReady, Err: nil}
	default:
		return Outcome{N: 0, Hint: Error, Err: err}
	}
}

func (p *Plain) Write(data []byte) Outcome {
	if len(data) == 0 {
		return Outcome{N: 0, Hint: None}
	}
	n, err := unix.Write(p.fd, data)
	return p.writeResult(n, err)
}

func (p *Plain) WriteV(head, body []byte) Outcome {
	iovs := make([][]byte, 0, 2)
	if len(head) > 0 {
		iovs = append(iovs, head)
	}
	if len(body) > 0 {
		iovs = append(iovs, body)
	}
	if len(iovs) == 0 {
		return Outcome{N: 0, Hint: None}
	}
	n, err := writev(p.fd, iovs)
	return p.writeResult(n, err)
}

func (p *Plain) writeResult(n int, err error) Outcome {
	if err == nil {
		return Outcome{N: n, Hint: None}
	}
	switch err {
	case unix.EAGAIN:
		return Outcome{N: n, Hint: WriteReady}
	case unix.EINTR:
		return Outcome{N: n, Hint: WriteReady}
	default:
		return Outcome{N: n, Hint: Error, Err: err}
	}
}

func (p *Plain) Close() error {
	return unix.Close(p.fd)
}

// writev performs a scatter/gather write via the writev(2) syscall, using
// the x/sys/unix helper rather than hand-rolling iovec construction.
func writev(fd int, bufs [][]byte) (int, error) {
	nonEmpty := make([][]byte, 0, len(bufs))
	for _, b := range bufs {
		if len(b) > 0 {
			nonEmpty = append(nonEmpty, b)
		}
	}
	if len(nonEmpty) == 0 {
		return 0, nil
	}
	return unix.Writev(fd, nonEmpty)
}
