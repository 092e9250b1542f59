//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package reactor

import "golang.org/x/sys/unix"

// newWakeFD on kqueue platforms uses a self-pipe (no eventfd equivalent),
// grounded on the same role the teacher's wakeup_darwin.go plays for its
// Loop: a pipe whose read end is registered for readability and whose write
// end any thread can signal.
func newWakeFD() (readFD, writeFD int, err error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func wakeFDSignal(writeFD int) error {
	var buf [1]byte
	_, err := unix.Write(writeFD, buf[:])
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func wakeFDDrain(readFD int) {
	var buf [64]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) error {
	_ = unix.Close(writeFD)
	return unix.Close(readFD)
}
