//go:build linux

package transport

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// EnableZeroCopy sets SO_ZEROCOPY on the socket (spec §4.6). Once enabled,
// WriteZeroCopy tags outbound sends with an increasing sequence number the
// kernel echoes back on the error queue once the send buffer is free for
// reuse.
func (p *Plain) EnableZeroCopy() ZeroCopyOutcome {
	err := unix.SetsockoptInt(p.fd, unix.SOL_SOCKET, unix.SO_ZEROCOPY, 1)
	if err != nil {
		return ZeroCopyUnsupported
	}
	p.zeroCopyOn = true
	return ZeroCopyEnabled
}

// WriteZeroCopy is like Write, but passes MSG_ZEROCOPY. The returned Outcome
// additionally reports, via ok, whether a completion notification should be
// expected on the error queue for the bytes actually accepted.
//
// EAGAIN/EINTR never produce a zerocopy notification; any sendmsg call that
// accepted at least one byte, a short send included, increments the
// kernel's internal completion counter and reports notifies=true.
func (p *Plain) WriteZeroCopy(data []byte) (out Outcome, notifies bool) {
	if !p.zeroCopyOn || len(data) == 0 {
		return p.Write(data), false
	}
	n, err := unix.SendmsgN(p.fd, data, nil, nil, unix.MSG_ZEROCOPY)
	if err == nil {
		if n > 0 {
			p.zeroCopyNext++
		}
		return Outcome{N: n, Hint: None}, n > 0
	}
	switch err {
	case unix.EAGAIN:
		return Outcome{N: n, Hint: WriteReady}, false
	case unix.EINTR:
		return Outcome{N: n, Hint: WriteReady}, false
	default:
		return Outcome{N: n, Hint: Error, Err: err}, false
	}
}

// PollZeroCopyCompletions drains MSG_ERRQUEUE for SO_EE_ORIGIN_ZEROCOPY
// completions, invoking onComplete once per completion record with the
// highest sequence number it covers (spec §4.6's "lo..hi range" collapses to
// its upper bound, since sequence numbers are handed out and consumed in
// strict FIFO order by the tracker in the conn package).
func (p *Plain) PollZeroCopyCompletions(onComplete func(lastSeq uint32)) (int, error) {
	if !p.zeroCopyOn {
		return 0, nil
	}
	count := 0
	buf := make([]byte, 0)
	oob := make([]byte, 256)
	for {
		_, oobn, _, _, err := unix.Recvmsg(p.fd, buf, oob, unix.MSG_ERRQUEUE|unix.MSG_DONTWAIT)
		if err != nil {
			if err == unix.EAGAIN {
				return count, nil
			}
			return count, err
		}
		if oobn == 0 {
			return count, nil
		}
		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return count, err
		}
		for _, scm := range scms {
			if len(scm.Data) < int(unsafe.Sizeof(sockExtendedErr{})) {
				continue
			}
			see := (*sockExtendedErr)(unsafe.Pointer(&scm.Data[0]))
			if see.Origin != unix.SO_EE_ORIGIN_ZEROCOPY {
				continue
			}
			count++
			if onComplete != nil {
				onComplete(see.Data) // hi sequence number, per linux's zerocopy ABI
			}
		}
	}
}

// sockExtendedErr mirrors struct sock_extended_err from linux/errqueue.h; the
// fields after Data (offender sockaddr) are unused here and omitted.
type sockExtendedErr struct {
	Errno  uint32
	Origin uint8
	Type   uint8
	Code   uint8
	Pad    uint8
	Info   uint32
	Data   uint32
}

// Sendfile transmits up to count bytes from inFD at the given offset directly
// to the socket, advancing offset in place. Grounded on the
// Ankit-Kulkarni-go-experiments/sendfl transferWithSendFile technique, lifted
// from net.TCPConn.SyscallConn onto a raw fd we already own.
func (p *Plain) Sendfile(inFD int, offset *int64, count int) Outcome {
	n, err := unix.Sendfile(p.fd, inFD, offset, count)
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
