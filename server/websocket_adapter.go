package server

import (
	"time"

	"github.com/aeronet-go/aeronet/conn"
	"github.com/aeronet-go/aeronet/websocket"
)

// websocketAdapter bridges websocket.Handler (which knows nothing of
// conn.Connection) into conn.ProtocolHandler, the open interface spec §9
// says to keep for the extensible protocol-handler set. websocket.Handler
// already implements the state machine; this type only adapts its
// signatures.
type websocketAdapter struct {
	handler *websocket.Handler
	onOpen  func(c *WebSocketConn)
	exposed *WebSocketConn
}

func newWebSocketAdapter(cfg WebSocketConfig, onMessage func(c *WebSocketConn, opcode websocket.Opcode, payload []byte)) *websocketAdapter {
	a := &websocketAdapter{}
	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 5 * time.Second
	}
	a.handler = websocket.NewHandler(cfg.Deflate, cfg.MaxMessageBytes, closeTimeout, func(op websocket.Opcode, payload []byte) {
		if onMessage != nil {
			onMessage(a.exposed, op, payload)
		}
	})
	a.exposed = &WebSocketConn{adapter: a}
	return a
}

func (a *websocketAdapter) Kind() conn.Protocol { return conn.WebSocket }

func (a *websocketAdapter) ProcessInput(data []byte, c *conn.Connection) (conn.HandlerAction, int) {
	consumed, shouldClose := a.handler.ProcessInput(data)
	if shouldClose {
		if a.handler.HasPendingOutput() {
			return conn.ActionClose, consumed
		}
		return conn.ActionCloseImmediate, consumed
	}
	return conn.ActionContinue, consumed
}

func (a *websocketAdapter) HasPendingOutput() bool { return a.handler.HasPendingOutput() }
func (a *websocketAdapter) PendingOutput() []byte  { return a.handler.PendingOutput() }
func (a *websocketAdapter) OnOutputWritten(n int)  { a.handler.OnOutputWritten(n) }
func (a *websocketAdapter) InitiateClose()         { a.handler.InitiateClose(websocket.CloseNormal, "") }
func (a *websocketAdapter) OnTransportClosing()    { a.handler.OnTransportClosing() }

func (a *websocketAdapter) sendText(payload []byte)   { a.handler.WriteMessage(websocket.OpText, payload) }
func (a *websocketAdapter) sendBinary(payload []byte) { a.handler.WriteMessage(websocket.OpBinary, payload) }

// checkCloseTimeout is driven from the maintenance tick (spec §5 "WebSocket
// close timeout: bounds CloseSent state").
func (a *websocketAdapter) checkCloseTimeout(now time.Time) bool { return a.handler.CheckCloseTimeout(now) }
