//go:build linux

package reactor

import "golang.org/x/sys/unix"

// newWakeFD creates a Linux eventfd for cross-thread wakeups. Grounded on
// eventloop/wakeup_linux.go's createWakeFd; a single fd serves as both the
// read and write end, matching spec §2 "Control flow for lifecycle and
// updates is signaled by writing to the wake-up fd."
func newWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func wakeFDSignal(writeFD int) error {
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(writeFD, buf[:])
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func wakeFDDrain(readFD int) {
	var buf [8]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, _ int) error {
	return unix.Close(readFD)
}
