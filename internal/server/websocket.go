package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/drilink/internal/logging"
	"github.com/muurk/drilink/internal/protocol"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send requests.
	maxMessageSize = 8192
)

type client struct {
	srv  *Server
	conn *websocket.Conn
	addr string
	send chan []byte

	once sync.Once
	done chan struct{}
}

func newClient(s *Server, conn *websocket.Conn, addr string) *client {
	return &client{
		srv:  s,
		conn: conn,
		addr: addr,
		send: make(chan []byte, s.config.SendBuffer),
		done: make(chan struct{}),
	}
}

// close stops the write pump, which closes the connection and so ends the
// read pump.
func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// readPump decodes requests from the client. The client may split or
// merge frames across messages; a synchronizer restores them.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	syncer := protocol.NewSynchronizer()
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info("Connection closed or error reading message",
					zap.String("remote_addr", c.addr),
					zap.Error(err),
				)
			}
			return
		}
		logging.LogWebSocketMessage(c.addr, "received", msgType, data)
		if msgType != websocket.BinaryMessage {
			continue
		}

		syncer.Feed(data)
		for {
			frame, ok := syncer.Next()
			if !ok {
				break
			}
			req, err := protocol.ParseRequest(frame.Payload)
			if err != nil {
				logging.Warn("Ignoring frame from client",
					zap.String("remote_addr", c.addr),
					zap.String("main_type", frame.MainType().String()),
					zap.Error(err),
				)
				continue
			}
			c.srv.handleRequest(c.addr, req)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				logging.Debug("Write failed",
					zap.String("remote_addr", c.addr),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
