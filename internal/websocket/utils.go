package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// ReadWait bounds how long a student connection may stay silent. The
	// exam page pings well within it.
	ReadWait = 5 * time.Minute
)

// ErrBadEnvelope marks a message that arrived intact but is not a JSON
// request. The connection itself is still usable.
var ErrBadEnvelope = errors.New("malformed request")

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadEnvelope reads one message and peeks at its action. The raw message
// is kept for Decode.
func ReadEnvelope(conn *websocket.Conn) (*RequestEnvelope, error) {
	conn.SetReadDeadline(time.Now().Add(ReadWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	env := &RequestEnvelope{Raw: data}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return env, nil
}

// Decode parses the full message behind env into v.
func (env *RequestEnvelope) Decode(v interface{}) error {
	return json.Unmarshal(env.Raw, v)
}
