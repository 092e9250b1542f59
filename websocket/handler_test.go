package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clientFrame(opcode Opcode, fin bool, payload []byte) []byte {
	return BuildFrame(nil, fin, false, opcode, payload, true, [4]byte{0xAA, 0xBB, 0xCC, 0xDD})
}

func TestHandlerAssemblesFragmentedTextMessage(t *testing.T) {
	var got []byte
	h := NewHandler(false, 0, time.Second, func(op Opcode, payload []byte) {
		got = append([]byte(nil), payload...)
	})

	data := append(clientFrame(OpText, false, []byte("hel")), clientFrame(OpContinuation, true, []byte("lo"))...)
	consumed, shouldClose := h.ProcessInput(data)
	require.Equal(t, len(data), consumed)
	require.False(t, shouldClose)
	require.Equal(t, "hello", string(got))
}

func TestHandlerRejectsNewMessageWhileAssembling(t *testing.T) {
	h := NewHandler(false, 0, time.Second, nil)
	data := append(clientFrame(OpText, false, []byte("a")), clientFrame(OpText, true, []byte("b"))...)
	_, shouldClose := h.ProcessInput(data)
	require.True(t, shouldClose)
}

func TestHandlerContinuationWithoutMessageInProgress(t *testing.T) {
	h := NewHandler(false, 0, time.Second, nil)
	_, shouldClose := h.ProcessInput(clientFrame(OpContinuation, true, []byte("x")))
	require.True(t, shouldClose)
}

func TestHandlerPingRepliesWithPong(t *testing.T) {
	h := NewHandler(false, 0, time.Second, nil)
	_, shouldClose := h.ProcessInput(clientFrame(OpPing, true, []byte("ping-data")))
	require.False(t, shouldClose)
	require.True(t, h.HasPendingOutput())

	result, frame, _ := ParseFrame(h.PendingOutput(), 0, false, false)
	require.Equal(t, Complete, result)
	require.Equal(t, OpPong, frame.Opcode)
	require.Equal(t, "ping-data", string(frame.Payload))
}

func TestHandlerCloseHandshakeEchoesCode(t *testing.T) {
	h := NewHandler(false, 0, time.Second, nil)
	payload := []byte{0x03, 0xE8} // 1000 Normal
	_, shouldClose := h.ProcessInput(clientFrame(OpClose, true, payload))
	require.True(t, shouldClose)
	require.Equal(t, Closed, h.State())

	result, frame, _ := ParseFrame(h.PendingOutput(), 0, false, false)
	require.Equal(t, Complete, result)
	require.Equal(t, OpClose, frame.Opcode)
	require.Equal(t, payload, frame.Payload)
}

func TestHandlerInitiatedCloseThenPeerCloseCompletes(t *testing.T) {
	h := NewHandler(false, 0, time.Second, nil)
	h.InitiateClose(CloseNormal, "bye")
	require.Equal(t, CloseSent, h.State())

	_, shouldClose := h.ProcessInput(clientFrame(OpClose, true, nil))
	require.True(t, shouldClose)
	require.Equal(t, Closed, h.State())
}

func TestHandlerCloseTimeoutForcesClosed(t *testing.T) {
	h := NewHandler(false, 0, time.Millisecond, nil)
	h.InitiateClose(CloseNormal, "")
	time.Sleep(5 * time.Millisecond)
	require.True(t, h.CheckCloseTimeout(time.Now()))
	require.Equal(t, Closed, h.State())
}

func TestHandlerInvalidUTF8TextClosesWithInvalidPayload(t *testing.T) {
	var closedCode bool
	h := NewHandler(false, 0, time.Second, nil)
	_, shouldClose := h.ProcessInput(clientFrame(OpText, true, []byte{0xff, 0xfe, 0xfd}))
	require.True(t, shouldClose)
	closedCode = h.State() == CloseSent
	require.True(t, closedCode)

	result, frame, _ := ParseFrame(h.PendingOutput(), 0, false, false)
	require.Equal(t, Complete, result)
	require.Equal(t, OpClose, frame.Opcode)
	require.Equal(t, []byte{0x03, 0xEF}, frame.Payload) // 1007 Invalid Payload
}

func TestHandlerPermessageDeflateRoundTrip(t *testing.T) {
	var got []byte
	h := NewHandler(true, 0, time.Second, func(op Opcode, payload []byte) {
		got = append([]byte(nil), payload...)
	})
	h.maskOutput = true // simulate the "client" role for this unit test's encode step

	original := []byte("compress me compress me compress me")
	h.WriteMessage(OpText, original)
	wire := h.PendingOutput()
	h.OnOutputWritten(len(wire))

	// Feed the compressed wire bytes back through a server-side handler's
	// ProcessInput to confirm inflate round-trips.
	serverSide := NewHandler(true, 0, time.Second, func(op Opcode, payload []byte) {
		got = append([]byte(nil), payload...)
	})
	_, shouldClose := serverSide.ProcessInput(wire)
	require.False(t, shouldClose)
	require.Equal(t, string(original), string(got))
}
