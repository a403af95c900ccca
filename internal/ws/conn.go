// README: Duplex channel abstraction over gorilla/websocket.
package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Sender is the write side of a duplex channel. The registry only ever
// writes and closes; reading stays with the connection's own handler
// goroutine.
type Sender interface {
	Send(msg []byte) error
	Close() error
}

// wsConn serializes writes to a gorilla connection, which permits at most
// one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewConn wraps an upgraded websocket connection as a Sender.
func NewConn(conn *websocket.Conn) Sender {
	return &wsConn{conn: conn}
}

func (c *wsConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
