package stream

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arturn1/log-dashboard/internal/domain"
	"github.com/arturn1/log-dashboard/internal/tracker"
)

// Recorder observes ingestion. Implementations must be safe for concurrent use.
type Recorder interface {
	EventAccepted(action domain.Action)
	DecodeFailed(reason string)
	Correlated(outcome tracker.Outcome)
	ChannelFailed()
	WindowSize(buffered, open int)
}

type noopRecorder struct{}

func (noopRecorder) EventAccepted(domain.Action)   {}
func (noopRecorder) DecodeFailed(string)           {}
func (noopRecorder) Correlated(tracker.Outcome)    {}
func (noopRecorder) ChannelFailed()                {}
func (noopRecorder) WindowSize(buffered, open int) {}

// PromRecorder exports ingestion counters to prometheus.
type PromRecorder struct {
	events         *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	anomalies      *prometheus.CounterVec
	channelErrors  prometheus.Counter
	buffered       prometheus.Gauge
	open           prometheus.Gauge
}

// NewPromRecorder builds the collectors and registers them on reg. Collectors
// already registered on reg are reused.
func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	r := &PromRecorder{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logdash",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Lifecycle events accepted into the rolling window",
		}, []string{"action"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logdash",
			Subsystem: "ingest",
			Name:      "decode_failures_total",
			Help:      "Inbound messages discarded by the decoder",
		}, []string{"reason"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logdash",
			Subsystem: "ingest",
			Name:      "correlation_anomalies_total",
			Help:      "Duplicate starts and terminals without an open action",
		}, []string{"kind"}),
		channelErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logdash",
			Subsystem: "ingest",
			Name:      "channel_errors_total",
			Help:      "Transport failures of the inbound channel",
		}),
		buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "logdash",
			Subsystem: "ingest",
			Name:      "window_events",
			Help:      "Events currently held in the rolling window",
		}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "logdash",
			Subsystem: "ingest",
			Name:      "open_actions",
			Help:      "Actions started and not yet finished",
		}),
	}
	if reg == nil {
		return r
	}
	r.events = register(reg, r.events)
	r.decodeFailures = register(reg, r.decodeFailures)
	r.anomalies = register(reg, r.anomalies)
	r.channelErrors = register(reg, r.channelErrors)
	r.buffered = register(reg, r.buffered)
	r.open = register(reg, r.open)
	return r
}

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

func (r *PromRecorder) EventAccepted(action domain.Action) {
	r.events.WithLabelValues(string(action)).Inc()
}

func (r *PromRecorder) DecodeFailed(reason string) {
	r.decodeFailures.WithLabelValues(reason).Inc()
}

func (r *PromRecorder) Correlated(outcome tracker.Outcome) {
	switch outcome {
	case tracker.Reopened:
		r.anomalies.WithLabelValues("duplicate_start").Inc()
	case tracker.Orphaned:
		r.anomalies.WithLabelValues("orphan_terminal").Inc()
	}
}

func (r *PromRecorder) ChannelFailed() { r.channelErrors.Inc() }

func (r *PromRecorder) WindowSize(buffered, open int) {
	r.buffered.Set(float64(buffered))
	r.open.Set(float64(open))
}
