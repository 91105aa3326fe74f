// Package httpx serves the dashboard state over JSON, websocket and SSE.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturn1/log-dashboard/internal/domain"
	"github.com/arturn1/log-dashboard/internal/stream"
	"github.com/arturn1/log-dashboard/internal/ws"
)

// StateReader is the read side of a stream session.
type StateReader interface {
	View() stream.View
	Status() (stream.Status, string)
	Recent(k int) []domain.LifecycleEvent
	OpenActions() []domain.LifecycleEvent
	Capacity() int
}

// Router wires HTTP endpoints to the session and the update hub.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	state      StateReader
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	limiter    StreamLimiter
	maxStreams int
	gatherer   prometheus.Gatherer
	heartbeat  time.Duration

	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	streamRejections *prometheus.CounterVec
	streamClients    prometheus.GaugeFunc
	skippedViews     prometheus.CounterFunc
}

// Options tunes the push routes and metrics of a Router.
type Options struct {
	// Limiter defaults to an in-memory limiter.
	Limiter StreamLimiter
	// MaxStreamsPerClient caps live streams per client address; zero or
	// less disables the cap.
	MaxStreamsPerClient int
	// Registry receives the HTTP collectors and is served on /metrics. Nil
	// uses the default registry.
	Registry  *prometheus.Registry
	Heartbeat time.Duration
}

const (
	defaultLogsLimit = stream.DefaultRecentLimit
	defaultHeartbeat = 15 * time.Second
)

// NewRouter assembles routes.
func NewRouter(logger *slog.Logger, state StateReader, hub *ws.Hub, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger.With("component", "http"),
		state:  state,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    opts.Limiter,
		maxStreams: opts.MaxStreamsPerClient,
		heartbeat:  opts.Heartbeat,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryStreamLimiter()
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	r.gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		registerer, r.gatherer = opts.Registry, opts.Registry
	}
	r.initMetrics(registerer)
	r.routes()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) routes() {
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	for route, handler := range map[string]http.HandlerFunc{
		"/healthz":     r.handleHealthz,
		"/api/state":   r.handleState,
		"/api/logs":    r.handleLogs,
		"/api/open":    r.handleOpen,
		"/api/metrics": r.handleMetrics,
		"/ws/state":    r.handleStateWS,
		"/sse/state":   r.handleStateSSE,
	} {
		r.mux.HandleFunc(route, r.audit(route, handler))
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	status, lastErr := r.state.Status()
	component := map[string]any{"status": string(status)}
	if lastErr != "" {
		component["error"] = lastErr
	}
	overall := "ok"
	code := http.StatusOK
	if status != stream.StatusConnected {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}
	r.respond(w, code, map[string]any{
		"status":     overall,
		"components": map[string]any{"stream": component},
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) handleState(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	r.writeView(w)
}

func (r *Router) handleLogs(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultLogsLimit
	}
	if capacity := r.state.Capacity(); limit > capacity {
		limit = capacity
	}
	r.respond(w, http.StatusOK, map[string]any{"logs": r.state.Recent(limit)})
}

func (r *Router) handleOpen(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	open := r.state.OpenActions()
	r.respond(w, http.StatusOK, map[string]any{"count": len(open), "open_actions": open})
}

func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	view := r.state.View()
	r.respond(w, http.StatusOK, map[string]any{
		"metrics":         view.Metrics,
		"duration_series": view.DurationSeries,
	})
}

func (r *Router) handleStateWS(w http.ResponseWriter, req *http.Request) {
	release, ok := r.admitStream(w, req, "/ws/state")
	if !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		release()
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	if err := r.sendView(client); err != nil {
		release()
		client.Close()
		return
	}
	r.hub.Register(client)
	go func() {
		defer release()
		client.Serve()
		r.hub.Unregister(client)
	}()
}

func (r *Router) handleStateSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	release, ok := r.admitStream(w, req, "/sse/state")
	if !ok {
		return
	}
	defer release()
	client, err := ws.OpenSSE(w, r.logger)
	if err != nil {
		if errors.Is(err, ws.ErrStreamingUnsupported) {
			r.fail(w, http.StatusInternalServerError, "streaming unsupported")
		}
		return
	}
	if err := r.sendView(client); err != nil {
		return
	}
	r.hub.Register(client)
	defer func() {
		r.hub.Unregister(client)
		client.Close()
	}()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) sendView(client ws.Subscriber) error {
	payload, err := r.encodeView()
	if err != nil {
		return err
	}
	return client.Send(payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &responseRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequest(req.Method, route, status, duration)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"remote", req.RemoteAddr,
		}
		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("request failed", fields...)
		case status == http.StatusTooManyRequests:
			r.logger.Warn("stream refused", fields...)
		default:
			r.logger.Debug("request served", fields...)
		}
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	r.fail(w, http.StatusMethodNotAllowed, "method not allowed")
}
