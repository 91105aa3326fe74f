package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/arturn1/log-dashboard/internal/app"
	httpx "github.com/arturn1/log-dashboard/internal/http"
	"github.com/arturn1/log-dashboard/internal/stream"
	"github.com/arturn1/log-dashboard/internal/ws"
	"github.com/arturn1/log-dashboard/pkg/config"
	"github.com/arturn1/log-dashboard/pkg/logger"
)

func main() {
	cfg := config.LoadDashboardConfig()
	log := logger.New("dashboard", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dial, err := app.NewDialer(cfg)
	if err != nil {
		log.Error("invalid source configuration", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := ws.NewHub(log)
	defer hub.Close()

	session := stream.NewSession(
		stream.WithCapacity(cfg.BufferCapacity),
		stream.WithRecentLimit(cfg.RecentLimit),
		stream.WithLogger(log),
		stream.WithRecorder(stream.NewPromRecorder(reg)),
		stream.WithSink(stream.SinkFunc(func(v stream.View) { hub.BroadcastJSON(v) })),
	)
	defer session.Close()

	limiter := httpx.NewMemoryStreamLimiter()
	if cfg.StreamLimitAddr != "" {
		shared, err := httpx.NewRedisStreamLimiter(cfg.StreamLimitAddr, cfg.StreamLimitPass, cfg.StreamLimitDB, log)
		if err != nil {
			log.Warn("shared stream limiter unavailable, counting locally", "error", err)
		} else {
			limiter = shared
		}
	}

	router := httpx.NewRouter(log, session, hub, httpx.Options{
		Limiter:             limiter,
		MaxStreamsPerClient: cfg.MaxStreamsPerIP,
		Registry:            reg,
		Heartbeat:           cfg.HeartbeatEvery,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.RegisterOnShutdown(hub.Close)

	supervisor := app.NewSupervisor(session, dial, cfg.Reconnect, cfg.ReconnectEvery, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("dashboard server starting", "addr", cfg.Addr, "source", cfg.Source, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return supervisor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("dashboard stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("dashboard stopped")
}
