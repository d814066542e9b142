package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteEvent sends a successful event with its payload.
func WriteEvent(conn *websocket.Conn, ev Event, data any) error {
	return write(conn, Response{Event: ev, Data: data})
}

// WriteError sends an error event. code mirrors the REST error codes.
func WriteError(conn *websocket.Conn, code, errMsg string) error {
	return write(conn, Response{Event: EventError, Code: code, Error: errMsg})
}

func write(conn *websocket.Conn, v Response) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// ReadRequest reads the next client message, refreshing the read deadline.
func ReadRequest(conn *websocket.Conn) (Request, error) {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	var req Request
	err := conn.ReadJSON(&req)
	return req, err
}
