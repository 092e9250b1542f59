//go:build linux || darwin

package reactor

import "net"

// fdOf extracts the raw file descriptor from a net.Conn for tests, the same
// SyscallConn-based technique used throughout the corpus (e.g.
// Ankit-Kulkarni-go-experiments/sendfl) to reach below the net package.
func fdOf(c net.Conn) (int, error) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		panic("fdOf: not a *net.TCPConn")
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	err = raw.Control(func(u uintptr) { fd = int(u) })
	return fd, err
}
