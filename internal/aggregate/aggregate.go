// Package aggregate derives dashboard metrics from a window of lifecycle events.
// Every function is pure: the same input slice yields the same output.
package aggregate

import (
	"strconv"

	"github.com/arturn1/log-dashboard/internal/domain"
)

// Compute summarises events. Volume and duration cover terminal events only;
// method and status counts cover every event.
func Compute(events []domain.LifecycleEvent) domain.Metrics {
	m := domain.Metrics{
		RequestsByMethod:   domain.NewCounts(),
		StatusDistribution: domain.NewCounts(),
	}
	var durationSum float64
	for _, e := range events {
		if e.Action.Terminal() {
			m.TotalRequests++
			durationSum += e.Duration
		}
		m.RequestsByMethod.Inc(e.Method)
		if e.HasStatus() {
			m.StatusDistribution.Inc(strconv.Itoa(*e.StatusCode))
		}
	}
	if m.TotalRequests > 0 {
		m.AverageDuration = durationSum / float64(m.TotalRequests)
	}
	return m
}

// Relevant returns the terminal events of events, preserving order.
func Relevant(events []domain.LifecycleEvent) []domain.LifecycleEvent {
	out := make([]domain.LifecycleEvent, 0, len(events))
	for _, e := range events {
		if e.Action.Terminal() {
			out = append(out, e)
		}
	}
	return out
}

// DurationSeries returns one point per terminal event, in arrival order.
func DurationSeries(events []domain.LifecycleEvent) []domain.DurationPoint {
	relevant := Relevant(events)
	out := make([]domain.DurationPoint, len(relevant))
	for i, e := range relevant {
		out[i] = domain.DurationPoint{ActionID: e.ActionID, Route: e.Route, Duration: e.Duration}
	}
	return out
}
