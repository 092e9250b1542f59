package main

import (
	"github.com/aeronet-go/aeronet/http1"
	"github.com/aeronet-go/aeronet/server"
	"github.com/aeronet-go/aeronet/websocket"
)

var healthHandler = http1.HandlerFunc(func(req *http1.Request) *http1.Response {
	return &http1.Response{
		Status: 200,
		Headers: http1.Headers{{Name: "Content-Type", Value: "application/json"}},
		Body:    []byte(`{"status":"ok"}`),
	}
})

var echoHandler = http1.HandlerFunc(func(req *http1.Request) *http1.Response {
	return &http1.Response{Status: 200, Body: append([]byte(nil), req.Body...)}
})

func echoWebSocketMessage(c *server.WebSocketConn, opcode websocket.Opcode, payload []byte) {
	switch opcode {
	case websocket.OpText:
		c.Send(payload)
	case websocket.OpBinary:
		c.SendBinary(payload)
	}
}
