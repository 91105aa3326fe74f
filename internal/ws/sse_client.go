package ws

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sseRetry is the reconnect delay suggested to EventSource.
const sseRetry = 3 * time.Second

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("sse: streaming unsupported")

// SSEClient streams dashboard views as Server-Sent Events. Each view carries
// an increasing id so the browser can tell replays from fresh updates.
type SSEClient struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	log     *slog.Logger
	seq     uint64
	closed  bool
	done    chan struct{}
}

// OpenSSE commits the event-stream headers and the retry hint. Nothing is
// written when the writer cannot flush, so the caller may still reply with an
// error.
func OpenSSE(w http.ResponseWriter, logger *slog.Logger) (*SSEClient, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	if logger == nil {
		logger = slog.Default()
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	c := &SSEClient{
		w:       w,
		flusher: flusher,
		log:     logger.With("viewer", uuid.NewString(), "transport", "sse"),
		done:    make(chan struct{}),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.emitLocked(fmt.Sprintf("retry: %d\n\n", sseRetry.Milliseconds())); err != nil {
		return nil, err
	}
	return c, nil
}

// Send emits one encoded view as a "state" event.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.emitLocked(fmt.Sprintf("id: %d\nevent: state\ndata: %s\n\n", c.seq, payload))
}

// Heartbeat writes a comment line so idle proxies keep the stream open.
func (c *SSEClient) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitLocked(": keepalive\n\n")
}

// Sent reports how many views have been emitted.
func (c *SSEClient) Sent() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *SSEClient) emitLocked(frame string) error {
	if c.closed {
		return io.EOF
	}
	if _, err := io.WriteString(c.w, frame); err != nil {
		c.log.Warn("sse write failed", "error", err)
		c.closeLocked()
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close marks the stream finished. It waits for an in-flight write.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

// Done is closed once the stream is closed.
func (c *SSEClient) Done() <-chan struct{} { return c.done }

func (c *SSEClient) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}
