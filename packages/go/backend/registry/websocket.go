package registry

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout = 10 * time.Second
	// Inbound frames above this size fail the read with websocket.ErrReadLimit.
	defaultReadLimit = 1 << 20
)

// WebSocketConn adapts a gorilla connection to Transport. gorilla allows one
// concurrent writer, so writes are serialized here.
type WebSocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps an upgraded connection and caps inbound frame size.
func NewWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	conn.SetReadLimit(defaultReadLimit)
	return &WebSocketConn{conn: conn, writeTimeout: defaultWriteTimeout}
}

// WriteText sends one text frame, bounded by the write timeout or the
// context deadline, whichever is sooner.
func (c *WebSocketConn) WriteText(ctx context.Context, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// ReadMessage blocks for the next data frame. Control frames are handled by gorilla.
func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close sends a normal closure frame and closes the socket. Safe to call twice.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
