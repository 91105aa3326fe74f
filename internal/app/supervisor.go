// Package app keeps a stream session fed from its configured upstream.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/arturn1/log-dashboard/internal/source"
	"github.com/arturn1/log-dashboard/internal/stream"
	"github.com/arturn1/log-dashboard/pkg/config"
)

// Dialer opens a fresh inbound channel.
type Dialer func(ctx context.Context) (stream.Source, error)

// NewDialer returns the Dialer for cfg.Source.
func NewDialer(cfg config.DashboardConfig) (Dialer, error) {
	switch cfg.Source {
	case config.SourceWebSocket, "":
		return func(ctx context.Context) (stream.Source, error) {
			return source.DialWebSocket(ctx, cfg.UpstreamURL, cfg.DialTimeout)
		}, nil
	case config.SourceRedis:
		opts := source.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		}
		return func(ctx context.Context) (stream.Source, error) {
			return source.SubscribeRedis(ctx, opts)
		}, nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// Supervisor runs a session against dialled sources, redialling after
// channel failures while the session keeps its window.
type Supervisor struct {
	session   *stream.Session
	dial      Dialer
	reconnect bool
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewSupervisor builds a supervisor. Dial attempts are spaced at least every
// apart; every <= 0 disables pacing.
func NewSupervisor(session *stream.Session, dial Dialer, reconnect bool, every time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	return &Supervisor{
		session:   session,
		dial:      dial,
		reconnect: reconnect,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger.With("component", "supervisor"),
	}
}

// Run dials and consumes until ctx is done or the session is closed. Without
// reconnect the first channel failure is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}
		if s.session.Closed() {
			return nil
		}
		src, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			chErr := s.session.Fail(fmt.Errorf("dial: %w", err))
			if !s.reconnect {
				return chErr
			}
			s.logger.Warn("dial failed, retrying", "attempt", attempt, "error", err)
			continue
		}
		s.logger.Info("source connected", "attempt", attempt)
		err = s.session.Run(ctx, src)
		switch {
		case err == nil, errors.Is(err, stream.ErrSessionClosed):
			return nil
		case !s.reconnect:
			return err
		}
		s.logger.Warn("source lost, reconnecting", "error", err)
	}
}
