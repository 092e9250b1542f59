package conn

import (
	"io"

	"github.com/aeronet-go/aeronet/transport"
)

// sendfileCapable is implemented by transports that can drive the kernel
// sendfile(2) path directly (Plain, and kTLS once offload is available).
type sendfileCapable interface {
	Sendfile(inFD int, offset *int64, count int) transport.Outcome
}

const fileSendChunk = 1 << 20 // matches the "configured max" chunk cap of spec §4.4

// PumpFileSend advances the file-send engine by one step (spec §4.4),
// called from the writable-flush path once OutBuffer is empty and
// FileSend.Active is true. It returns the action the caller (the flush
// loop) must take.
type FileSendResult int

const (
	FileSendProgressed FileSendResult = iota
	FileSendComplete
	FileSendWouldBlockArmWritable
	FileSendWouldBlockRetryLater
	FileSendError
)

// PumpFileSend drives exactly one send attempt, choosing the sendfile path
// when the transport supports it (Plain, kTLS-with-zerocopy) and the
// pread-then-write path otherwise (TLS without kernel offload), per spec
// §4.4's three named paths.
func PumpFileSend(c *Connection) (FileSendResult, error) {
	fs := c.FileSend
	if fs == nil || !fs.Active {
		return FileSendComplete, nil
	}
	if fs.HeadersPending {
		// The caller must flush queued header bytes from OutBuffer first;
		// spec §3 invariant: fileSend.active ⇒ outBuffer empty or
		// headersPending=true.
		return FileSendWouldBlockRetryLater, nil
	}

	if sf, ok := c.Transport.(sendfileCapable); ok {
		return pumpViaSendfile(c, fs, sf)
	}
	return pumpViaPread(c, fs)
}

func pumpViaSendfile(c *Connection, fs *FileSendState, sf sendfileCapable) (FileSendResult, error) {
	count := fileSendChunk
	if int64(count) > fs.Remaining {
		count = int(fs.Remaining)
	}
	inFD := int(fs.File.Fd())
	out := sf.Sendfile(inFD, &fs.Offset, count)
	switch out.Hint {
	case transport.None:
		fs.Remaining -= int64(out.N)
		if fs.Remaining == 0 {
			fs.Active = false
			_ = fs.File.Close()
			return FileSendComplete, nil
		}
		return FileSendProgressed, nil
	case transport.WriteReady:
		// sendfile(2) fails with EAGAIN/EINTR only when it sent nothing,
		// leaving fs.Offset untouched; x/sys reports N as -1 in that case,
		// so only a positive N is taken off Remaining.
		if out.N > 0 {
			fs.Remaining -= int64(out.N)
		}
		return FileSendWouldBlockArmWritable, nil
	default:
		fs.Active = false
		_ = fs.File.Close()
		c.CloseMode.Raise(CloseImmediate)
		return FileSendError, out.Err
	}
}

// pumpViaPread implements the TLS (non-kTLS) path: bytes are read into
// TunnelOrFile in chunks, then handed to the transport like ordinary data,
// since sendfile cannot pass through user-space crypto (spec §4.4).
func pumpViaPread(c *Connection, fs *FileSendState) (FileSendResult, error) {
	chunk := fileSendChunk
	if int64(chunk) > fs.Remaining {
		chunk = int(fs.Remaining)
	}
	if cap(c.TunnelOrFile) < chunk {
		c.TunnelOrFile = make([]byte, chunk)
	}
	buf := c.TunnelOrFile[:chunk]

	n, err := fs.File.ReadAt(buf, fs.Offset)
	if n == 0 {
		if err != nil && err != io.EOF {
			fs.Active = false
			_ = fs.File.Close()
			c.CloseMode.Raise(CloseImmediate)
			return FileSendError, err
		}
		// "pread returning 0 while remaining > 0 is treated as WouldBlock"
		return FileSendWouldBlockRetryLater, nil
	}

	out := c.Transport.Write(buf[:n])
	switch out.Hint {
	case transport.None:
		fs.Offset += int64(out.N)
		fs.Remaining -= int64(out.N)
		if fs.Remaining == 0 {
			fs.Active = false
			_ = fs.File.Close()
			return FileSendComplete, nil
		}
		return FileSendProgressed, nil
	case transport.WriteReady:
		// The bytes we already pread but couldn't fully write must not be
		// silently dropped; stash the unwritten remainder back so the next
		// pump re-sends it rather than re-reading from disk.
		if out.N < n {
			leftover := append([]byte(nil), buf[out.N:n]...)
			c.OutBuffer = append(c.OutBuffer, leftover...)
			fs.Offset += int64(n)
			fs.Remaining -= int64(n)
		}
		return FileSendWouldBlockArmWritable, nil
	default:
		fs.Active = false
		_ = fs.File.Close()
		c.CloseMode.Raise(CloseImmediate)
		return FileSendError, out.Err
	}
}
