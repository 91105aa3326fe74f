// Package source provides inbound message channels for stream sessions.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultDialTimeout = 5 * time.Second
	closeWriteWait     = time.Second
	maxMessageSize     = 1 << 20
)

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("source: closed")

// WebSocket reads lifecycle messages from a websocket endpoint.
type WebSocket struct {
	url       string
	conn      *websocket.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

// DialWebSocket connects to url. The handshake honours ctx and timeout.
func DialWebSocket(ctx context.Context, url string, timeout time.Duration) (*WebSocket, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, errors.New("source: websocket url required")
	}
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, trimmed, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", trimmed, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", trimmed, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &WebSocket{url: trimmed, conn: conn, closed: make(chan struct{})}, nil
}

// Receive returns the next text or binary message. Cancellation is handled by
// the caller closing the source.
func (w *WebSocket) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-w.closed:
		return nil, ErrClosed
	default:
	}
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.closed:
				return nil, ErrClosed
			default:
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read %s: %w", w.url, err)
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close sends a close frame and releases the connection.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		deadline := time.Now().Add(closeWriteWait)
		_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = w.conn.Close()
	})
	return err
}
