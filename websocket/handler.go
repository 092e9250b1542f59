package websocket

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"io"
	"time"
	"unicode/utf8"
)

// State is the handler's connection state machine (spec §4.8).
type State int

const (
	Open State = iota
	CloseSent
	CloseReceived
	Closed
)

// CloseCode values named by this engine; the full IANA registry is larger.
// The engine itself originates 1002, 1007 and 1009; the others are sent
// only when passed to InitiateClose.
const (
	CloseNormal           uint16 = 1000
	CloseProtocolError    uint16 = 1002
	CloseInvalidPayload   uint16 = 1007
	ClosePolicyViolation  uint16 = 1008
	CloseMessageTooBig    uint16 = 1009
)

// MessageCallback is invoked once a full Text/Binary message has been
// assembled (all continuation frames appended, FIN received).
type MessageCallback func(opcode Opcode, payload []byte)

// Handler drives one connection's worth of frame assembly (spec §4.8).
type Handler struct {
	state State

	allowRSV1  bool // permessage-deflate negotiated
	maxPayload int64

	assembling   bool
	assembleOp   Opcode
	assembleBuf  []byte

	closeSentAt time.Time
	closeTimeout time.Duration

	onMessage MessageCallback
	out       []byte // pending bytes to splice into the connection's OutBuffer

	maskOutput bool // true for client-role handlers; false for server-role
}

// NewHandler creates a server-side handler (maskOutput=false); there is no
// constructor option for the client role.
func NewHandler(allowRSV1 bool, maxPayload int64, closeTimeout time.Duration, onMessage MessageCallback) *Handler {
	return &Handler{
		allowRSV1:    allowRSV1,
		maxPayload:   maxPayload,
		closeTimeout: closeTimeout,
		onMessage:    onMessage,
	}
}

// State reports the current handshake/close state.
func (h *Handler) State() State { return h.state }

// HasPendingOutput / PendingOutput / OnOutputWritten implement the
// ProtocolHandler output-splice contract of spec §4.7.
func (h *Handler) HasPendingOutput() bool { return len(h.out) > 0 }
func (h *Handler) PendingOutput() []byte  { return h.out }
func (h *Handler) OnOutputWritten(n int)  { h.out = h.out[n:] }

// ProcessInput consumes as many complete frames as are available in data,
// returns the number of bytes consumed, and reports whether the connection
// should close (spec §4.8's handler state machine).
func (h *Handler) ProcessInput(data []byte) (consumed int, shouldClose bool) {
	isServerSide := !h.maskOutput
	for {
		result, frame, n := ParseFrame(data[consumed:], h.maxPayload, isServerSide, h.allowRSV1)
		switch result {
		case Incomplete:
			return consumed, h.state == Closed
		case ProtocolError:
			h.initiateCloseLocked(CloseProtocolError, "")
			return consumed, true
		case PayloadTooLarge:
			h.initiateCloseLocked(CloseMessageTooBig, "")
			return consumed, true
		}
		consumed += n

		if h.handleFrame(frame) {
			return consumed, true
		}
		if h.state == Closed {
			return consumed, true
		}
	}
}

// handleFrame returns true if the connection should close immediately
// after this frame.
func (h *Handler) handleFrame(f Frame) bool {
	switch f.Opcode {
	case OpPing:
		h.queueControl(OpPong, f.Payload)
		return false
	case OpPong:
		return false
	case OpClose:
		return h.handleClose(f.Payload)
	case OpText, OpBinary:
		if h.assembling {
			h.initiateCloseLocked(CloseProtocolError, "")
			return true
		}
		h.assembling = !f.FIN
		h.assembleOp = f.Opcode
		payload := f.Payload
		if f.RSV1 {
			decoded, ok := inflate(payload)
			if !ok {
				h.initiateCloseLocked(CloseInvalidPayload, "")
				return true
			}
			payload = decoded
		}
		h.assembleBuf = append(h.assembleBuf[:0], payload...)
		if f.FIN {
			return h.completeMessage()
		}
		return false
	case OpContinuation:
		if !h.assembling {
			h.initiateCloseLocked(CloseProtocolError, "")
			return true
		}
		h.assembleBuf = append(h.assembleBuf, f.Payload...)
		if f.FIN {
			h.assembling = false
			return h.completeMessage()
		}
		return false
	default:
		h.initiateCloseLocked(CloseProtocolError, "")
		return true
	}
}

func (h *Handler) completeMessage() bool {
	if h.assembleOp == OpText && !utf8.Valid(h.assembleBuf) {
		h.initiateCloseLocked(CloseInvalidPayload, "")
		return true
	}
	if h.onMessage != nil {
		h.onMessage(h.assembleOp, h.assembleBuf)
	}
	return false
}

func (h *Handler) handleClose(payload []byte) bool {
	switch h.state {
	case Open:
		h.state = CloseReceived
		h.echoClose(payload)
		h.state = Closed
		return true
	case CloseSent:
		h.state = Closed
		return true
	default:
		return true
	}
}

func (h *Handler) echoClose(payload []byte) {
	if len(payload) > 123 {
		payload = payload[:123] // truncated to fit the 125-byte control-frame limit (code is 2 bytes)
	}
	h.queueControl(OpClose, payload)
}

func (h *Handler) queueControl(op Opcode, payload []byte) {
	var maskKey [4]byte
	h.out = BuildFrame(h.out, true, false, op, payload, h.maskOutput, maskKey)
}

// InitiateClose starts a locally-initiated close handshake (spec §4.7
// "initiate_close").
func (h *Handler) InitiateClose(code uint16, reason string) {
	h.initiateCloseLocked(code, reason)
}

func (h *Handler) initiateCloseLocked(code uint16, reason string) {
	if h.state != Open {
		return
	}
	var payload []byte
	if code != 0 {
		payload = make([]byte, 2, 2+len(reason))
		binary.BigEndian.PutUint16(payload, code)
		payload = append(payload, reason...)
		if len(payload) > 125 {
			payload = payload[:125]
		}
	}
	h.queueControl(OpClose, payload)
	h.state = CloseSent
	h.closeSentAt = time.Now()
}

// OnTransportClosing implements the ProtocolHandler contract (spec §4.7).
func (h *Handler) OnTransportClosing() { h.state = Closed }

// CheckCloseTimeout forces Closed if CloseSent has persisted beyond the
// configured timeout (spec §4.8 "Close-timeout").
func (h *Handler) CheckCloseTimeout(now time.Time) bool {
	if h.state == CloseSent && h.closeTimeout > 0 && now.Sub(h.closeSentAt) > h.closeTimeout {
		h.state = Closed
		return true
	}
	return false
}

// WriteMessage queues a complete Text/Binary message for output, optionally
// compressing it with permessage-deflate when allowRSV1 (negotiated) is
// set (spec §4.8: "RSV1 is set only on the first frame of a compressed
// message" - single-frame messages here, so RSV1 marks the whole frame).
func (h *Handler) WriteMessage(opcode Opcode, payload []byte) {
	rsv1 := false
	if h.allowRSV1 {
		if compressed, ok := deflate(payload); ok {
			payload = compressed
			rsv1 = true
		}
	}
	var maskKey [4]byte
	h.out = BuildFrame(h.out, true, rsv1, opcode, payload, h.maskOutput, maskKey)
}

func deflate(payload []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(payload); err != nil {
		return nil, false
	}
	// permessage-deflate uses a sync flush (not Close) so the stream ends
	// in the standard 00 00 ff ff empty-block marker, which is then
	// stripped; Close() would append a different final-block tail.
	if err := w.Flush(); err != nil {
		return nil, false
	}
	out := buf.Bytes()
	if len(out) >= 4 {
		out = out[:len(out)-4]
	}
	return out, true
}

func inflate(payload []byte) ([]byte, bool) {
	// permessage-deflate requires re-appending the empty deflate block the
	// sender stripped before decompressing.
	payload = append(payload, 0x00, 0x00, 0xFF, 0xFF)
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	return out, true
}
