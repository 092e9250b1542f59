//go:build linux

package server

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

var errWouldBlock = errors.New("server: accept would block")

// accept4NonBlocking wraps accept4(2) with SOCK_NONBLOCK, matching the
// edge-triggered "Accept until EAGAIN" loop spec §4.1 requires.
func accept4NonBlocking(listenerFD int) (int, unix.Sockaddr, error) {
	fd, sa, err := unix.Accept4(listenerFD, unix.SOCK_NONBLOCK)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return -1, nil, errWouldBlock
		}
		return -1, nil, err
	}
	return fd, sa, nil
}

func closeRawFD(fd int) error { return unix.Close(fd) }

// sockaddrString renders sa as "host:port" for logging/diagnostics; it never
// fails loudly since it only feeds informational fields.
func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return "unknown"
	}
}
