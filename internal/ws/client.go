package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 5 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	maxInbound  = 512
	closeReason = "dashboard shutting down"
)

// Client is a dashboard viewer attached over websocket. Viewers only listen,
// so the read side exists to answer control frames and notice disconnects.
type Client struct {
	id        string
	mu        sync.Mutex
	conn      *websocket.Conn
	log       *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps an upgraded connection and tags it with a fresh viewer id.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	conn.SetReadLimit(maxInbound)
	return &Client{
		id:   id,
		conn: conn,
		log:  logger.With("viewer", id, "transport", "websocket"),
		done: make(chan struct{}),
	}
}

// ID identifies the viewer in logs.
func (c *Client) ID() string { return c.id }

// Send pushes one encoded view as a text frame.
func (c *Client) Send(payload []byte) error {
	if err := c.write(websocket.TextMessage, payload); err != nil {
		c.log.Warn("view push failed", "error", err)
		c.Close()
		return err
	}
	return nil
}

// Serve blocks until the viewer disconnects, stops answering pings or Close
// is called. Anything the viewer sends is discarded.
func (c *Client) Serve() {
	defer c.Close()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.keepAlive()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("viewer read ended", "error", err)
			}
			return
		}
	}
}

func (c *Client) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, payload)
}

// Close sends a close frame on a best-effort basis and drops the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, closeReason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}
