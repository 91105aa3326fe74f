package httpx

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

func (r *Router) initMetrics(reg prometheus.Registerer) {
	r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logdash",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	r.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "logdash",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	r.streamRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logdash",
		Subsystem: "http",
		Name:      "stream_rejections_total",
		Help:      "Push streams refused because the client address hit its stream cap",
	}, []string{"route"})

	r.streamClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "logdash",
		Subsystem: "http",
		Name:      "stream_clients",
		Help:      "Websocket and SSE clients receiving dashboard updates",
	}, func() float64 { return float64(r.hub.Len()) })

	r.skippedViews = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "logdash",
		Subsystem: "http",
		Name:      "stream_views_skipped_total",
		Help:      "Views replaced by a newer one before a slow client could receive them",
	}, func() float64 { return float64(r.hub.Skipped()) })

	if reg == nil {
		return
	}
	r.requestTotal = register(reg, r.requestTotal)
	r.requestDuration = register(reg, r.requestDuration)
	r.streamRejections = register(reg, r.streamRejections)
	register(reg, r.streamClients)
	register(reg, r.skippedViews)
}

// register adopts an already registered collector of the same shape so that
// several routers can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (r *Router) recordRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestDuration.With(labels).Observe(duration.Seconds())
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	return rr.ResponseWriter.Write(b)
}

// Flush lets SSE handlers stream through the recorder.
func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection.
func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rr.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
