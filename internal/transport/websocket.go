package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/drilink/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed for the opening handshake
	handshakeTimeout = 10 * time.Second
)

// WebSocketConn presents a WebSocket carrying DRI frames as a byte stream.
// Message boundaries are ignored on read; the synchronizer finds frames.
// Every Write is sent as one binary message.
type WebSocketConn struct {
	conn   *websocket.Conn
	url    string
	reader io.Reader

	wmu sync.Mutex
}

// DialWebSocket connects to a simulator or bridge at url (ws:// or wss://)
func DialWebSocket(ctx context.Context, url string) (*WebSocketConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Type:    ErrTypeOpen,
				Address: url,
				Message: fmt.Sprintf("handshake failed with HTTP %d", resp.StatusCode),
				Err:     err,
			}
		}
		return nil, ClassifyNetworkError(err, url)
	}

	logging.LogConnection(url, "websocket_connected")
	return &WebSocketConn{conn: conn, url: url}, nil
}

// Read implements io.Reader over the concatenated message payloads
func (c *WebSocketConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			msgType, r, err := c.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, ClassifyNetworkError(err, c.url)
			}
			if msgType != websocket.BinaryMessage {
				logging.Debug("Ignoring non-binary message",
					zap.String("url", c.url),
					zap.Int("type", msgType),
				)
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

// Write sends p as one binary message
func (c *WebSocketConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return 0, err
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, ClassifyNetworkError(err, c.url)
	}
	logging.LogWebSocketMessage(c.url, "sent", websocket.BinaryMessage, p)
	return len(p), nil
}

// Close sends a close message and closes the connection
func (c *WebSocketConn) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()

	logging.LogConnection(c.url, "websocket_closed")
	return c.conn.Close()
}

// String returns the URL
func (c *WebSocketConn) String() string { return c.url }
