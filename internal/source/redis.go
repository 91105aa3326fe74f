package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisOptions configures a redis pub/sub source.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Redis reads lifecycle messages published on a redis channel.
type Redis struct {
	client    *redis.Client
	pubsub    *redis.PubSub
	channel   string
	closeOnce sync.Once
	closed    chan struct{}
}

// SubscribeRedis connects to redis and subscribes to opts.Channel.
func SubscribeRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	channel := strings.TrimSpace(opts.Channel)
	if channel == "" {
		return nil, errors.New("source: redis channel required")
	}
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return &Redis{client: client, pubsub: pubsub, channel: channel, closed: make(chan struct{})}, nil
}

// Receive returns the payload of the next published message.
func (r *Redis) Receive(ctx context.Context) ([]byte, error) {
	msg, err := r.pubsub.ReceiveMessage(ctx)
	if err != nil {
		select {
		case <-r.closed:
			return nil, ErrClosed
		default:
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// the read deadline comes from ctx and may fire before ctx reports it
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("receive %s: %w", r.channel, err)
	}
	return []byte(msg.Payload), nil
}

// Close unsubscribes and closes the client.
func (r *Redis) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = errors.Join(r.pubsub.Close(), r.client.Close())
	})
	return err
}
