// Package tracker correlates start events with their terminal counterparts.
package tracker

import "github.com/arturn1/log-dashboard/internal/domain"

// Outcome describes what a tracker update did.
type Outcome int

const (
	// Ignored means the event had the wrong phase for the call.
	Ignored Outcome = iota
	// Opened means a new action entered the open set.
	Opened
	// Reopened means a Start replaced the stored Start of an already open action.
	Reopened
	// Closed means a terminal event removed an open action.
	Closed
	// Orphaned means a terminal event arrived for an action that was not open.
	Orphaned
)

func (o Outcome) String() string {
	switch o {
	case Opened:
		return "opened"
	case Reopened:
		return "reopened"
	case Closed:
		return "closed"
	case Orphaned:
		return "orphaned"
	default:
		return "ignored"
	}
}

// Anomalies counts correlation events that break the one-start-one-terminal rule.
type Anomalies struct {
	DuplicateStarts int64 `json:"duplicate_starts"`
	OrphanTerminals int64 `json:"orphan_terminals"`
}

type slot struct {
	event domain.LifecycleEvent
	live  bool
}

// Tracker holds the Start event of every open action, keyed by action id.
// Open actions are kept in the order they were first opened. Storage is a dense
// arena of slots plus an id to slot index; closed slots are tombstoned and
// compacted once they outnumber live ones.
// Tracker is not safe for concurrent use.
type Tracker struct {
	slots     []slot
	index     map[string]int
	dead      int
	anomalies Anomalies
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{index: make(map[string]int)}
}

// OnStart opens e.ActionID. A Start for an id that is already open overwrites
// the stored event (last start wins) and is counted as a duplicate.
func (t *Tracker) OnStart(e domain.LifecycleEvent) Outcome {
	if e.Action != domain.ActionStart {
		return Ignored
	}
	if pos, ok := t.index[e.ActionID]; ok {
		t.slots[pos].event = e
		t.anomalies.DuplicateStarts++
		return Reopened
	}
	t.index[e.ActionID] = len(t.slots)
	t.slots = append(t.slots, slot{event: e, live: true})
	return Opened
}

// OnTerminal closes e.ActionID. Terminals for ids that are not open are
// tolerated and counted.
func (t *Tracker) OnTerminal(e domain.LifecycleEvent) Outcome {
	if !e.Action.Terminal() {
		return Ignored
	}
	pos, ok := t.index[e.ActionID]
	if !ok {
		t.anomalies.OrphanTerminals++
		return Orphaned
	}
	delete(t.index, e.ActionID)
	t.slots[pos] = slot{}
	t.dead++
	if t.dead > len(t.index) {
		t.compact()
	}
	return Closed
}

// IsOpen reports whether id currently has an open Start.
func (t *Tracker) IsOpen(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Get returns the open Start event for id.
func (t *Tracker) Get(id string) (domain.LifecycleEvent, bool) {
	pos, ok := t.index[id]
	if !ok {
		return domain.LifecycleEvent{}, false
	}
	return t.slots[pos].event, true
}

// Len returns the number of open actions.
func (t *Tracker) Len() int { return len(t.index) }

// OpenActions returns the open Start events in the order they were opened.
func (t *Tracker) OpenActions() []domain.LifecycleEvent {
	out := make([]domain.LifecycleEvent, 0, len(t.index))
	for _, s := range t.slots {
		if s.live {
			out = append(out, s.event)
		}
	}
	return out
}

// Anomalies returns the correlation anomaly counters.
func (t *Tracker) Anomalies() Anomalies { return t.anomalies }

func (t *Tracker) compact() {
	live := make([]slot, 0, len(t.index))
	for _, s := range t.slots {
		if s.live {
			t.index[s.event.ActionID] = len(live)
			live = append(live, s)
		}
	}
	t.slots = live
	t.dead = 0
}
