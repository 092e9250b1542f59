package protocolh2

import (
	"encoding/base64"
	"testing"

	"github.com/aeronet-go/aeronet/conn"
	"github.com/stretchr/testify/require"
)

func TestDecodeSettingsRoundTrips(t *testing.T) {
	encoded := "AAMAAABkAAQAAP__"
	decoded, err := DecodeSettings(encoded)
	require.NoError(t, err)
	require.NotEmpty(t, decoded)
	require.Equal(t, encoded, base64.RawURLEncoding.EncodeToString(decoded))
}

func TestDecodeSettingsRejectsInvalidBase64(t *testing.T) {
	_, err := DecodeSettings("not!valid!base64")
	require.Error(t, err)
}

func TestHandlerForwardsBytesToExternalEngine(t *testing.T) {
	var seen []byte
	h := NewHandler(nil, func(data []byte) int {
		seen = append(seen, data...)
		return len(data)
	})
	require.Equal(t, conn.HTTP2, h.Kind())

	action, n := h.ProcessInput([]byte("frame-bytes"), nil)
	require.Equal(t, conn.ActionContinue, action)
	require.Equal(t, len("frame-bytes"), n)
	require.Equal(t, "frame-bytes", string(seen))
}

func TestHandlerQueueOutputAndDrain(t *testing.T) {
	h := NewHandler(nil, nil)
	h.QueueOutput([]byte("response-frame"))
	require.True(t, h.HasPendingOutput())
	require.Equal(t, "response-frame", string(h.PendingOutput()))
	h.OnOutputWritten(len("response-frame"))
	require.False(t, h.HasPendingOutput())
}

func TestHandlerCloseStopsForwarding(t *testing.T) {
	h := NewHandler(nil, func(data []byte) int { return len(data) })
	h.InitiateClose()
	action, n := h.ProcessInput([]byte("x"), nil)
	require.Equal(t, conn.ActionClose, action)
	require.Equal(t, 0, n)
}
