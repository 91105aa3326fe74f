package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	streamKeyPrefix = "logdash:streams:"
	// streamLease bounds how long a slot survives a replica that died without
	// releasing it. Every acquire for the key renews the lease.
	streamLease    = 10 * time.Minute
	redisOpTimeout = 500 * time.Millisecond
)

// redisStreamLimiter shares stream counts between dashboard replicas. Redis
// errors admit the stream.
type redisStreamLimiter struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStreamLimiter connects to addr and verifies it with a PING.
func NewRedisStreamLimiter(addr, password string, db int, logger *slog.Logger) (StreamLimiter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("stream limiter redis ping: %w", err)
	}
	return &redisStreamLimiter{client: client, log: logger.With("component", "stream_limiter")}, nil
}

func (l *redisStreamLimiter) Acquire(ctx context.Context, key string, limit int) (func(), bool) {
	rkey := streamKeyPrefix + key
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.Expire(ctx, rkey, streamLease)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn("stream limiter unavailable, admitting stream", "key", key, "error", err)
		return func() {}, true
	}
	if limit > 0 && incr.Val() > int64(limit) {
		l.release(rkey)
		return nil, false
	}
	return releaseOnce(func() { l.release(rkey) }), true
}

func (l *redisStreamLimiter) release(rkey string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := l.client.Decr(ctx, rkey).Result()
	if err != nil {
		l.log.Warn("stream limiter release failed", "key", rkey, "error", err)
		return
	}
	if n <= 0 {
		l.client.Del(ctx, rkey)
	}
}

func (l *redisStreamLimiter) Close() {
	if err := l.client.Close(); err != nil {
		l.log.Warn("stream limiter close failed", "error", err)
	}
}
