// Package stream ingests lifecycle events from an inbound channel into the
// rolling window and the open-action tracker.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arturn1/log-dashboard/internal/aggregate"
	"github.com/arturn1/log-dashboard/internal/domain"
	"github.com/arturn1/log-dashboard/internal/tracker"
	"github.com/arturn1/log-dashboard/internal/window"
)

// DefaultRecentLimit is the number of events shown in the live log panel.
const DefaultRecentLimit = 50

// Source is an inbound message channel. Receive blocks until a message arrives,
// the channel fails or ctx is done. Close must be safe to call more than once
// and must unblock a pending Receive.
type Source interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Sink receives a fresh View after every state change.
type Sink interface {
	Publish(View)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(View)

// Publish calls f(v).
func (f SinkFunc) Publish(v View) { f(v) }

// Status is the connection state reported to the presentation layer.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusConnected Status = "connected"
	StatusError     Status = "error"
	StatusClosed    Status = "closed"
)

// Stats carries diagnostic counters of a session.
type Stats struct {
	Buffered       int               `json:"buffered"`
	Capacity       int               `json:"capacity"`
	Accepted       int64             `json:"accepted"`
	Evicted        int64             `json:"evicted"`
	DecodeFailures int64             `json:"decode_failures"`
	ChannelErrors  int64             `json:"channel_errors"`
	Anomalies      tracker.Anomalies `json:"anomalies"`
	LastEventAt    *time.Time        `json:"last_event_at,omitempty"`
}

// View is a consistent snapshot of the session for presentation.
type View struct {
	SessionID      string                  `json:"session_id"`
	Status         Status                  `json:"status"`
	LastError      string                  `json:"last_error,omitempty"`
	Logs           []domain.LifecycleEvent `json:"logs"`
	OpenActions    []domain.LifecycleEvent `json:"open_actions"`
	Metrics        domain.Metrics          `json:"metrics"`
	DurationSeries []domain.DurationPoint  `json:"duration_series"`
	Stats          Stats                   `json:"stats"`
}

// Option configures a Session.
type Option func(*Session)

// WithCapacity sets the rolling window size.
func WithCapacity(n int) Option {
	return func(s *Session) { s.capacity = n }
}

// WithRecentLimit sets how many events a View carries in Logs.
func WithRecentLimit(n int) Option {
	return func(s *Session) { s.recentLimit = n }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithRecorder sets the ingestion recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithSink sets the receiver of state changes.
func WithSink(sink Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session owns the rolling window and open-action tracker for one display
// lifetime. Messages are applied by a single consumer; readers get copies.
type Session struct {
	id          string
	capacity    int
	recentLimit int
	logger      *slog.Logger
	recorder    Recorder
	sink        Sink
	now         func() time.Time

	mu             sync.RWMutex
	buf            *window.Buffer
	open           *tracker.Tracker
	src            Source
	status         Status
	lastErr        string
	decodeFailures int64
	channelErrors  int64
	lastEventAt    time.Time
}

// NewSession returns an idle session with an empty window.
func NewSession(opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		capacity:    window.DefaultCapacity,
		recentLimit: DefaultRecentLimit,
		now:         time.Now,
		status:      StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.capacity <= 0 {
		s.capacity = window.DefaultCapacity
	}
	if s.recentLimit <= 0 {
		s.recentLimit = DefaultRecentLimit
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "stream_session", "session_id", s.id)
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	s.buf = window.New(s.capacity)
	s.open = tracker.New()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Run consumes src until ctx is done, the session is closed or src fails.
// A source failure is returned as *ChannelError and leaves the window intact.
// src is closed when Run returns.
func (s *Session) Run(ctx context.Context, src Source) error {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		_ = src.Close()
		return ErrSessionClosed
	}
	s.src = src
	s.status = StatusConnected
	s.lastErr = ""
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer func() {
		stop()
		_ = src.Close()
		s.mu.Lock()
		if s.src == src {
			s.src = nil
		}
		s.mu.Unlock()
	}()

	s.logger.Info("stream connected")
	s.publish()

	for {
		raw, err := src.Receive(ctx)
		if err != nil {
			if s.Closed() {
				return nil
			}
			if ctx.Err() != nil {
				s.idle()
				s.logger.Info("stream stopped")
				return nil
			}
			return s.fail(err)
		}
		if err := s.Handle(raw); errors.Is(err, ErrSessionClosed) {
			return nil
		}
	}
}

// idle marks a cancelled, still open session as disconnected.
func (s *Session) idle() {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	s.status = StatusIdle
	s.mu.Unlock()
	s.publish()
}

// Handle applies one raw message. Malformed messages are counted, logged and
// discarded; the returned error is informational.
func (s *Session) Handle(raw []byte) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	event, err := Decode(raw)
	if err != nil {
		reason := "malformed"
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			reason = decodeErr.Reason()
		}
		s.mu.Lock()
		s.decodeFailures++
		s.mu.Unlock()
		s.recorder.DecodeFailed(reason)
		s.logger.Warn("discarding inbound message", "error", err, "reason", reason)
		return err
	}
	return s.Apply(event)
}

// Apply appends a decoded event to the window and routes it to the tracker.
func (s *Session) Apply(event domain.LifecycleEvent) error {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.buf.Append(event)
	var outcome tracker.Outcome
	if event.Action == domain.ActionStart {
		outcome = s.open.OnStart(event)
	} else {
		outcome = s.open.OnTerminal(event)
	}
	s.lastEventAt = s.now().UTC()
	buffered, open := s.buf.Len(), s.open.Len()
	s.mu.Unlock()

	s.recorder.EventAccepted(event.Action)
	s.recorder.Correlated(outcome)
	s.recorder.WindowSize(buffered, open)
	switch outcome {
	case tracker.Reopened:
		s.logger.Debug("duplicate start for open action", "action_id", event.ActionID)
	case tracker.Orphaned:
		s.logger.Debug("terminal event without open action", "action_id", event.ActionID, "action", event.Action)
	}
	s.publish()
	return nil
}

// Status returns the current connection status and last channel error.
func (s *Session) Status() (Status, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.lastErr
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == StatusClosed
}

// Events returns a copy of the whole window in arrival order.
func (s *Session) Events() []domain.LifecycleEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.Snapshot()
}

// Recent returns the last k events in arrival order.
func (s *Session) Recent(k int) []domain.LifecycleEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.Recent(k)
}

// OpenActions returns the Start events of actions still in flight.
func (s *Session) OpenActions() []domain.LifecycleEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open.OpenActions()
}

// Metrics aggregates over a snapshot of the window.
func (s *Session) Metrics() domain.Metrics {
	return aggregate.Compute(s.Events())
}

// Capacity returns the rolling window size.
func (s *Session) Capacity() int { return s.capacity }

// View captures window, tracker and status under one lock and aggregates the
// copy outside it.
func (s *Session) View() View {
	s.mu.RLock()
	events := s.buf.Snapshot()
	open := s.open.OpenActions()
	v := View{
		SessionID:   s.id,
		Status:      s.status,
		LastError:   s.lastErr,
		OpenActions: open,
		Stats: Stats{
			Buffered:       s.buf.Len(),
			Capacity:       s.buf.Cap(),
			Accepted:       s.buf.Total(),
			Evicted:        s.buf.Evicted(),
			DecodeFailures: s.decodeFailures,
			ChannelErrors:  s.channelErrors,
			Anomalies:      s.open.Anomalies(),
		},
	}
	if !s.lastEventAt.IsZero() {
		at := s.lastEventAt
		v.Stats.LastEventAt = &at
	}
	s.mu.RUnlock()

	v.Metrics = aggregate.Compute(events)
	v.DurationSeries = aggregate.DurationSeries(events)
	start := len(events) - s.recentLimit
	if start < 0 {
		start = 0
	}
	v.Logs = events[start:]
	return v
}

// Close stops ingestion, releases the active source and discards all state.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return nil
	}
	src := s.src
	s.src = nil
	s.status = StatusClosed
	s.buf = window.New(s.capacity)
	s.open = tracker.New()
	s.mu.Unlock()

	var err error
	if src != nil {
		err = src.Close()
	}
	s.logger.Info("stream session closed")
	s.publish()
	return err
}

// Fail records a channel failure that happened outside Run, such as a failed
// dial, and returns it as *ChannelError.
func (s *Session) Fail(err error) error {
	return s.fail(err)
}

func (s *Session) fail(err error) error {
	chErr := &ChannelError{Err: err}
	s.mu.Lock()
	s.status = StatusError
	s.lastErr = err.Error()
	s.channelErrors++
	s.mu.Unlock()
	s.recorder.ChannelFailed()
	s.logger.Warn("stream channel failed", "error", err)
	s.publish()
	return chErr
}

func (s *Session) publish() {
	if s.sink == nil {
		return
	}
	s.sink.Publish(s.View())
}
