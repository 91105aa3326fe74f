package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/arturn1/log-dashboard/internal/domain"
	"github.com/arturn1/log-dashboard/internal/tracker"
	"github.com/arturn1/log-dashboard/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type chanSource struct {
	msgs      chan []byte
	fail      chan error
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	closes    int
}

func newChanSource() *chanSource {
	return &chanSource{
		msgs: make(chan []byte, 16),
		fail: make(chan error, 1),
		done: make(chan struct{}),
	}
}

func (c *chanSource) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.msgs:
		return msg, nil
	case err := <-c.fail:
		return nil, err
	case <-c.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *chanSource) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *chanSource) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type recordingSink struct {
	mu    sync.Mutex
	views []View
}

func (r *recordingSink) Publish(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recordingSink) last() (View, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return View{}, 0
	}
	return r.views[len(r.views)-1], len(r.views)
}

type countingRecorder struct {
	mu        sync.Mutex
	accepted  int
	failures  map[string]int
	channel   int
	anomalies int
}

func (c *countingRecorder) EventAccepted(domain.Action) {
	c.mu.Lock()
	c.accepted++
	c.mu.Unlock()
}

func (c *countingRecorder) DecodeFailed(reason string) {
	c.mu.Lock()
	if c.failures == nil {
		c.failures = make(map[string]int)
	}
	c.failures[reason]++
	c.mu.Unlock()
}

func (c *countingRecorder) Correlated(outcome tracker.Outcome) {
	c.mu.Lock()
	if outcome == tracker.Reopened || outcome == tracker.Orphaned {
		c.anomalies++
	}
	c.mu.Unlock()
}

func (c *countingRecorder) ChannelFailed() {
	c.mu.Lock()
	c.channel++
	c.mu.Unlock()
}

func (c *countingRecorder) WindowSize(int, int) {}

func msg(action, id, method string, duration float64, status int) []byte {
	if status == 0 {
		return []byte(fmt.Sprintf(`{"action":%q,"actionId":%q,"userId":"u","session":"s","method":%q,"duration":%v}`, action, id, method, duration))
	}
	return []byte(fmt.Sprintf(`{"action":%q,"actionId":%q,"userId":"u","session":"s","method":%q,"duration":%v,"statusCode":%d}`, action, id, method, duration, status))
}

func newTestSession(opts ...Option) *Session {
	return NewSession(append([]Option{WithLogger(logger.Discard())}, opts...)...)
}

func TestSessionDecodeResilience(t *testing.T) {
	rec := &countingRecorder{}
	s := newTestSession(WithRecorder(rec))
	if err := s.Handle(msg("start", "A", "GET", 0, 0)); err != nil {
		t.Fatalf("handle first: %v", err)
	}
	if err := s.Handle([]byte(`{"action":`)); err == nil {
		t.Fatalf("expected decode error for malformed payload")
	}
	if err := s.Handle(msg("finished", "A", "GET", 40, 200)); err != nil {
		t.Fatalf("handle second: %v", err)
	}
	events := s.Events()
	if len(events) != 2 {
		t.Fatalf("expected exactly two events, got %d", len(events))
	}
	if events[0].Action != domain.ActionStart || events[1].Action != domain.ActionFinished {
		t.Fatalf("expected arrival order preserved, got %+v", events)
	}
	if rec.failures["malformed"] != 1 {
		t.Fatalf("expected one malformed decode failure recorded, got %v", rec.failures)
	}
	if s.View().Stats.DecodeFailures != 1 {
		t.Fatalf("expected decode failure counted in stats")
	}
}

func TestSessionCorrelation(t *testing.T) {
	s := newTestSession()
	_ = s.Handle(msg("start", "A", "GET", 0, 0))
	if open := s.OpenActions(); len(open) != 1 || open[0].ActionID != "A" {
		t.Fatalf("expected A open after start, got %+v", open)
	}
	_ = s.Handle(msg("finished", "A", "GET", 10, 200))
	if open := s.OpenActions(); len(open) != 0 {
		t.Fatalf("expected no open actions after finished, got %+v", open)
	}
}

func TestSessionOrphanTerminalStillBuffered(t *testing.T) {
	s := newTestSession()
	_ = s.Handle(msg("start", "A", "GET", 0, 0))
	if err := s.Handle(msg("error", "ghost", "POST", 5, 500)); err != nil {
		t.Fatalf("expected orphan terminal to be accepted, got %v", err)
	}
	if len(s.Events()) != 2 {
		t.Fatalf("expected orphan terminal appended to the window")
	}
	open := s.OpenActions()
	if len(open) != 1 || open[0].ActionID != "A" {
		t.Fatalf("expected tracker unchanged, got %+v", open)
	}
	if s.View().Stats.Anomalies.OrphanTerminals != 1 {
		t.Fatalf("expected orphan anomaly counted")
	}
}

func TestSessionViewMetricsAndRecentLimit(t *testing.T) {
	s := newTestSession(WithCapacity(4), WithRecentLimit(2))
	_ = s.Handle(msg("start", "1", "GET", 0, 0))
	_ = s.Handle(msg("finished", "1", "GET", 100, 200))
	_ = s.Handle(msg("finished", "2", "POST", 300, 500))

	v := s.View()
	if v.Metrics.TotalRequests != 2 || v.Metrics.AverageDuration != 200 {
		t.Fatalf("unexpected metrics %+v", v.Metrics)
	}
	if v.Metrics.RequestsByMethod.Get("GET") != 2 || v.Metrics.RequestsByMethod.Get("POST") != 1 {
		t.Fatalf("unexpected method counts %v", v.Metrics.RequestsByMethod.Values())
	}
	if len(v.Logs) != 2 || v.Logs[0].ActionID != "1" || v.Logs[1].ActionID != "2" {
		t.Fatalf("expected last two events in logs, got %+v", v.Logs)
	}
	if len(v.DurationSeries) != 2 {
		t.Fatalf("expected two duration points, got %d", len(v.DurationSeries))
	}
	if v.Stats.Capacity != 4 || v.Stats.Buffered != 3 {
		t.Fatalf("unexpected stats %+v", v.Stats)
	}

	for i := 0; i < 5; i++ {
		_ = s.Handle(msg("start", fmt.Sprintf("x%d", i), "GET", 0, 0))
	}
	if got := len(s.Events()); got != 4 {
		t.Fatalf("expected window bounded at 4, got %d", got)
	}
	if s.View().Stats.Evicted != 4 {
		t.Fatalf("expected 4 evictions, got %d", s.View().Stats.Evicted)
	}
}

func TestSessionRunConsumesUntilCancelled(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSession(WithSink(sink))
	src := newChanSource()
	src.msgs <- msg("start", "A", "GET", 0, 0)
	src.msgs <- []byte("garbage")
	src.msgs <- msg("finished", "A", "GET", 12, 201)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, src) }()

	waitFor(t, func() bool { return len(s.Events()) == 2 })
	if status, _ := s.Status(); status != StatusConnected {
		t.Fatalf("expected connected status, got %s", status)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	if src.closeCount() == 0 {
		t.Fatalf("expected source closed when run returns")
	}
	if status, _ := s.Status(); status != StatusIdle {
		t.Fatalf("expected idle status after cancellation, got %s", status)
	}
	last, n := sink.last()
	if n == 0 || last.Metrics.TotalRequests != 1 {
		t.Fatalf("expected sink to receive views, got %d (last %+v)", n, last.Metrics)
	}
	if last.Status != StatusIdle {
		t.Fatalf("expected the final published view to be idle, got %s", last.Status)
	}
}

func TestSessionChannelErrorKeepsState(t *testing.T) {
	rec := &countingRecorder{}
	s := newTestSession(WithRecorder(rec))
	src := newChanSource()
	src.msgs <- msg("start", "A", "GET", 0, 0)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), src) }()
	waitFor(t, func() bool { return len(s.Events()) == 1 })
	src.fail <- errors.New("connection reset")

	var err error
	select {
	case err = <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after channel failure")
	}
	var chErr *ChannelError
	if !errors.As(err, &chErr) {
		t.Fatalf("expected *ChannelError, got %v", err)
	}
	status, lastErr := s.Status()
	if status != StatusError || lastErr != "connection reset" {
		t.Fatalf("unexpected status %s %q", status, lastErr)
	}
	if len(s.Events()) != 1 || len(s.OpenActions()) != 1 {
		t.Fatalf("expected state to survive channel error")
	}
	if rec.channel != 1 {
		t.Fatalf("expected channel failure recorded")
	}

	// a new source resumes on top of the existing window
	next := newChanSource()
	next.msgs <- msg("finished", "A", "GET", 8, 200)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- s.Run(ctx, next) }()
	waitFor(t, func() bool { return len(s.OpenActions()) == 0 })
	cancel()
	<-done
	if len(s.Events()) != 2 {
		t.Fatalf("expected both events retained across reconnect")
	}
}

func TestSessionCloseDiscardsStateAndStopsRun(t *testing.T) {
	s := newTestSession()
	src := newChanSource()
	src.msgs <- msg("start", "A", "GET", 0, 0)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), src) }()
	waitFor(t, func() bool { return len(s.Events()) == 1 })

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil from run after close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop after close")
	}
	if len(s.Events()) != 0 || len(s.OpenActions()) != 0 {
		t.Fatalf("expected state discarded on close")
	}
	if err := s.Handle(msg("start", "B", "GET", 0, 0)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.Run(context.Background(), newChanSource()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected run on closed session to fail, got %v", err)
	}
	if status, _ := s.Status(); status != StatusClosed {
		t.Fatalf("expected closed status, got %s", status)
	}
}

func TestSessionViewDuringIngestion(t *testing.T) {
	s := newTestSession(WithCapacity(100))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = s.Handle(msg("finished", fmt.Sprintf("id-%d", i), "GET", 10, 200))
		}
	}()
	for i := 0; i < 50; i++ {
		v := s.View()
		if v.Metrics.TotalRequests != v.Stats.Buffered {
			t.Fatalf("torn view: %d requests vs %d buffered", v.Metrics.TotalRequests, v.Stats.Buffered)
		}
		if v.Metrics.TotalRequests > 0 && v.Metrics.AverageDuration != 10 {
			t.Fatalf("unexpected average %v", v.Metrics.AverageDuration)
		}
	}
	wg.Wait()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
