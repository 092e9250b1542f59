//go:build linux

package server

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// newListener creates a non-blocking, edge-triggered-ready listening socket
// bound to port, optionally with SO_REUSEPORT so N workers (spec §4.10) can
// share one address and let the kernel distribute accepted connections.
// Built directly on golang.org/x/sys/unix rather than net.Listen: the
// reactor needs the raw fd to register with epoll and to drive accept4
// itself, and no third-party listener library in this module's dependency
// set offers that (DESIGN.md justifies this as the one stdlib/x-sys-only
// path in the package).
func newListener(port int, reusePort bool) (int, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("server: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("server: SO_REUSEADDR: %w", err)
	}
	if reusePort {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("server: SO_REUSEPORT: %w", err)
		}
	}
	// Accept both v4 and v6 on one socket, matching a typical embeddable
	// server's default bind behavior.
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)

	addr := &unix.SockaddrInet6{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("server: bind: %w", err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("server: listen: %w", err)
	}
	return fd, nil
}

// boundPort reads back the port the kernel assigned (relevant when Config.Port == 0).
func boundPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet6:
		return a.Port, nil
	case *unix.SockaddrInet4:
		return a.Port, nil
	default:
		return 0, fmt.Errorf("server: unexpected sockaddr type %T", sa)
	}
}
