package websocket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyMaskIsInvolution(t *testing.T) {
	key := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	orig := []byte("Hello, WebSocket world! This is a longer payload to exercise the 8-byte chunking path.")
	data := append([]byte(nil), orig...)
	ApplyMask(data, key)
	require.NotEqual(t, orig, data)
	ApplyMask(data, key)
	require.Equal(t, orig, data)
}

func TestBuildThenParseRoundTrip(t *testing.T) {
	var maskKey [4]byte = [4]byte{1, 2, 3, 4}
	payload := []byte("round trip payload")
	buf := BuildFrame(nil, true, false, OpText, payload, true, maskKey)

	result, frame, consumed := ParseFrame(buf, 0, true, false)
	require.Equal(t, Complete, result)
	require.Equal(t, len(buf), consumed)
	require.Equal(t, OpText, frame.Opcode)
	require.True(t, frame.FIN)
	require.Equal(t, payload, frame.Payload)
}

func TestParseFrameIncompleteHeader(t *testing.T) {
	result, _, _ := ParseFrame([]byte{0x81}, 0, true, false)
	require.Equal(t, Incomplete, result)
}

func TestParseFrameRejectsRSV2(t *testing.T) {
	buf := []byte{0x81 | 0x20, 0x00}
	result, _, _ := ParseFrame(buf, 0, true, false)
	require.Equal(t, ProtocolError, result)
}

func TestParseFrameRejectsUnmaskedFromClientOnServer(t *testing.T) {
	buf := BuildFrame(nil, true, false, OpText, []byte("x"), false, [4]byte{})
	result, _, _ := ParseFrame(buf, 0, true, false)
	require.Equal(t, ProtocolError, result)
}

func TestParseFrameRejectsOversizeControlFrame(t *testing.T) {
	payload := make([]byte, 126)
	buf := BuildFrame(nil, true, false, OpPing, payload, true, [4]byte{9, 9, 9, 9})
	result, _, _ := ParseFrame(buf, 0, true, false)
	require.Equal(t, ProtocolError, result)
}

func TestParseFrameEnforcesMinimalLengthEncoding(t *testing.T) {
	// 16-bit extended length field carrying a value < 126 is a violation.
	buf := []byte{0x82, 0x80 | 126, 0x00, 0x05, 1, 2, 3, 4} // masked, ext-16 = 5
	buf = append(buf, []byte("hello")...)
	result, _, _ := ParseFrame(buf, 0, true, false)
	require.Equal(t, ProtocolError, result)
}

func TestParseFramePayloadTooLarge(t *testing.T) {
	buf := BuildFrame(nil, true, false, OpBinary, make([]byte, 1000), true, [4]byte{1, 1, 1, 1})
	result, _, _ := ParseFrame(buf, 100, true, false)
	require.Equal(t, PayloadTooLarge, result)
}
