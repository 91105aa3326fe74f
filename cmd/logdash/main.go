package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/arturn1/log-dashboard/internal/app"
	"github.com/arturn1/log-dashboard/internal/client"
	"github.com/arturn1/log-dashboard/internal/stream"
	"github.com/arturn1/log-dashboard/pkg/config"
	"github.com/arturn1/log-dashboard/pkg/logger"
)

type cliConfig struct {
	ServerURL   string `json:"server_url"`
	UpstreamURL string `json:"upstream_url"`
}

const (
	defaultServerURL   = "http://localhost:7080"
	defaultUpstreamURL = "ws://localhost:7075/logs"
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "watch":
		err = commandWatch(args)
	case "status":
		err = commandStatus(args)
	case "logs":
		err = commandLogs(args)
	case "config":
		err = commandConfig(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandWatch(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dash := config.LoadDashboardConfig()
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	source := fs.String("source", dash.Source, "Inbound channel: websocket or redis")
	upstream := fs.String("url", cfg.UpstreamURL, "Upstream websocket URL")
	redisAddr := fs.String("redis", dash.RedisAddr, "Redis address for the redis source")
	channel := fs.String("channel", dash.RedisChannel, "Redis channel for the redis source")
	interval := fs.Duration("interval", time.Second, "Refresh interval")
	recent := fs.Int("recent", 20, "Number of live log lines")
	buffer := fs.Int("buffer", dash.BufferCapacity, "Rolling window size")
	verbose := fs.Bool("verbose", false, "Log session diagnostics to stderr")
	fs.Parse(args)

	dash.Source = strings.ToLower(strings.TrimSpace(*source))
	dash.UpstreamURL = strings.TrimSpace(*upstream)
	dash.RedisAddr = *redisAddr
	dash.RedisChannel = *channel
	dial, err := app.NewDialer(dash)
	if err != nil {
		return err
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	log := logger.NewWithWriter(os.Stderr, "logdash", level)
	session := stream.NewSession(
		stream.WithCapacity(*buffer),
		stream.WithRecentLimit(*recent),
		stream.WithLogger(log),
	)
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	supervisor := app.NewSupervisor(session, dial, dash.Reconnect, dash.ReconnectEvery, log)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Run(gctx)
	})
	g.Go(func() error {
		watchLoop(gctx, os.Stdout, session, *interval)
		return nil
	})
	return g.Wait()
}

// watchLoop redraws the view every interval. On a terminal the screen is
// cleared and lines are cut to its width; otherwise a frame is only written
// when something changed.
func watchLoop(ctx context.Context, out *os.File, session *stream.Session, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	fd := int(out.Fd())
	tty := term.IsTerminal(fd)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastAccepted int64 = -1
	var lastStatus stream.Status
	for {
		view := session.View()
		switch {
		case tty:
			width, _, err := term.GetSize(fd)
			if err != nil {
				width = 0
			}
			_, _ = io.WriteString(out, clearScreen)
			renderView(out, view, width)
		case view.Stats.Accepted != lastAccepted || view.Status != lastStatus:
			renderView(out, view, 0)
			_, _ = io.WriteString(out, "\n")
		}
		lastAccepted, lastStatus = view.Stats.Accepted, view.Status

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func commandStatus(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := fs.String("server", cfg.ServerURL, "Dashboard base URL")
	fs.Parse(args)

	cli, err := client.New(*server)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	health, err := cli.Health(ctx)
	if err != nil {
		return err
	}
	view, err := cli.State(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("health: %s\n\n", health.Status)
	renderView(os.Stdout, view, 0)
	return nil
}

func commandLogs(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	server := fs.String("server", cfg.ServerURL, "Dashboard base URL")
	limit := fs.Int("limit", 50, "Maximum number of events")
	open := fs.Bool("open", false, "List running actions instead of recent logs")
	fs.Parse(args)

	cli, err := client.New(*server)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if *open {
		actions, err := cli.OpenActions(ctx)
		if err != nil {
			return err
		}
		for _, e := range actions {
			fmt.Println(formatOpen(e))
		}
		return nil
	}
	events, err := cli.Logs(ctx, *limit)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Println(formatLog(e))
	}
	return nil
}

func commandConfig(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	server := fs.String("server", "", "Default dashboard base URL")
	upstream := fs.String("url", "", "Default upstream websocket URL")
	fs.Parse(args)

	if strings.TrimSpace(*server) == "" && strings.TrimSpace(*upstream) == "" {
		fmt.Printf("server_url=%s\nupstream_url=%s\n", cfg.ServerURL, cfg.UpstreamURL)
		return nil
	}
	if s := strings.TrimSpace(*server); s != "" {
		cfg.ServerURL = s
	}
	if u := strings.TrimSpace(*upstream); u != "" {
		cfg.UpstreamURL = u
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("configuration saved")
	return nil
}

func printUsage() {
	fmt.Printf("logdash CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	logdash watch [--url ws://localhost:7075/logs] [--source websocket|redis] [--redis addr --channel name] [--interval 1s] [--recent 20]
	logdash status [--server http://localhost:7080]
	logdash logs [--server http://localhost:7080] [--limit N] [--open]
	logdash config [--server url] [--url ws-url]
	logdash version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return withDefaults(cliConfig{}), nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	return withDefaults(cfg), nil
}

func withDefaults(cfg cliConfig) cliConfig {
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServerURL
	}
	if cfg.UpstreamURL == "" {
		cfg.UpstreamURL = defaultUpstreamURL
		if env := strings.TrimSpace(config.GetString("LOGDASH_UPSTREAM_URL", "")); env != "" {
			cfg.UpstreamURL = env
		}
	}
	return cfg
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "logdash", "config.json"), nil
}
