package httpx

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// streamRetryAfter is advertised to viewers turned away by the stream cap.
const streamRetryAfter = 5 * time.Second

// StreamLimiter caps how many live websocket and SSE streams one client
// address may hold at once.
type StreamLimiter interface {
	// Acquire claims a slot for key. When ok is true the caller must invoke
	// release once the stream ends; release is safe to call more than once.
	Acquire(ctx context.Context, key string, limit int) (release func(), ok bool)
	Close()
}

type memoryStreamLimiter struct {
	mu     sync.Mutex
	active map[string]int
}

// NewMemoryStreamLimiter counts streams in process memory.
func NewMemoryStreamLimiter() StreamLimiter {
	return &memoryStreamLimiter{active: make(map[string]int)}
}

func (l *memoryStreamLimiter) Acquire(_ context.Context, key string, limit int) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit > 0 && l.active[key] >= limit {
		return nil, false
	}
	l.active[key]++
	return releaseOnce(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.active[key]--; l.active[key] <= 0 {
			delete(l.active, key)
		}
	}), true
}

func (l *memoryStreamLimiter) count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[key]
}

func (l *memoryStreamLimiter) Close() {}

func releaseOnce(fn func()) func() {
	var once sync.Once
	return func() { once.Do(fn) }
}

// admitStream claims a stream slot for the caller. On rejection the 429 has
// already been written.
func (r *Router) admitStream(w http.ResponseWriter, req *http.Request, route string) (func(), bool) {
	release, ok := r.limiter.Acquire(req.Context(), clientKey(req), r.maxStreams)
	if ok {
		return release, true
	}
	r.streamRejections.WithLabelValues(route).Inc()
	w.Header().Set("Retry-After", strconv.Itoa(int(streamRetryAfter/time.Second)))
	r.fail(w, http.StatusTooManyRequests, "too many live streams from this address")
	return nil, false
}

func clientKey(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}
