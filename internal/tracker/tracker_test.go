package tracker

import (
	"strconv"
	"testing"

	"github.com/arturn1/log-dashboard/internal/domain"
)

func start(id string) domain.LifecycleEvent {
	return domain.LifecycleEvent{Action: domain.ActionStart, ActionID: id, Method: "GET"}
}

func finished(id string) domain.LifecycleEvent {
	return domain.LifecycleEvent{Action: domain.ActionFinished, ActionID: id, Method: "GET", Duration: 10}
}

func failed(id string) domain.LifecycleEvent {
	return domain.LifecycleEvent{Action: domain.ActionError, ActionID: id, Method: "GET", Duration: 10}
}

func ids(events []domain.LifecycleEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ActionID
	}
	return out
}

func TestTrackerStartThenFinished(t *testing.T) {
	tr := New()
	if got := tr.OnStart(start("A")); got != Opened {
		t.Fatalf("expected opened, got %s", got)
	}
	if !tr.IsOpen("A") {
		t.Fatalf("expected A to be open after start")
	}
	if got := tr.OnTerminal(finished("A")); got != Closed {
		t.Fatalf("expected closed, got %s", got)
	}
	if tr.IsOpen("A") {
		t.Fatalf("expected A to be closed after finished")
	}
	if tr.Len() != 0 || len(tr.OpenActions()) != 0 {
		t.Fatalf("expected no open actions")
	}
}

func TestTrackerErrorClosesAction(t *testing.T) {
	tr := New()
	tr.OnStart(start("A"))
	if got := tr.OnTerminal(failed("A")); got != Closed {
		t.Fatalf("expected error event to close action, got %s", got)
	}
}

func TestTrackerOrphanTerminalLeavesStateUnchanged(t *testing.T) {
	tr := New()
	tr.OnStart(start("A"))
	before := ids(tr.OpenActions())

	if got := tr.OnTerminal(finished("never-seen")); got != Orphaned {
		t.Fatalf("expected orphaned, got %s", got)
	}
	if got := tr.OnTerminal(failed("never-seen")); got != Orphaned {
		t.Fatalf("expected orphaned, got %s", got)
	}
	after := ids(tr.OpenActions())
	if len(before) != len(after) || after[0] != "A" {
		t.Fatalf("expected open set unchanged, before %v after %v", before, after)
	}
	if tr.Anomalies().OrphanTerminals != 2 {
		t.Fatalf("expected 2 orphan terminals, got %d", tr.Anomalies().OrphanTerminals)
	}
}

func TestTrackerDuplicateTerminal(t *testing.T) {
	tr := New()
	tr.OnStart(start("A"))
	tr.OnTerminal(finished("A"))
	if got := tr.OnTerminal(finished("A")); got != Orphaned {
		t.Fatalf("expected second terminal to be orphaned, got %s", got)
	}
	if tr.Len() != 0 {
		t.Fatalf("expected empty tracker")
	}
}

func TestTrackerDuplicateStartLastWins(t *testing.T) {
	tr := New()
	tr.OnStart(start("A"))
	tr.OnStart(start("B"))
	second := start("A")
	second.Route = "/retry"
	if got := tr.OnStart(second); got != Reopened {
		t.Fatalf("expected reopened, got %s", got)
	}
	if tr.Len() != 2 {
		t.Fatalf("expected one entry per id, got %d", tr.Len())
	}
	stored, ok := tr.Get("A")
	if !ok || stored.Route != "/retry" {
		t.Fatalf("expected last start to win, got %+v", stored)
	}
	if got := ids(tr.OpenActions()); got[0] != "A" || got[1] != "B" {
		t.Fatalf("expected original open order kept, got %v", got)
	}
	if tr.Anomalies().DuplicateStarts != 1 {
		t.Fatalf("expected 1 duplicate start, got %d", tr.Anomalies().DuplicateStarts)
	}
}

func TestTrackerTerminalBeforeStart(t *testing.T) {
	tr := New()
	tr.OnTerminal(finished("A"))
	tr.OnStart(start("A"))
	if !tr.IsOpen("A") {
		t.Fatalf("expected late start to open the action")
	}
}

func TestTrackerIgnoresWrongPhase(t *testing.T) {
	tr := New()
	if got := tr.OnStart(finished("A")); got != Ignored {
		t.Fatalf("expected OnStart to ignore terminal events, got %s", got)
	}
	if got := tr.OnTerminal(start("A")); got != Ignored {
		t.Fatalf("expected OnTerminal to ignore start events, got %s", got)
	}
	if tr.Len() != 0 {
		t.Fatalf("expected no state change")
	}
}

func TestTrackerCompactionKeepsOrder(t *testing.T) {
	tr := New()
	for i := 0; i < 100; i++ {
		tr.OnStart(start(strconv.Itoa(i)))
	}
	for i := 0; i < 100; i++ {
		if i%3 != 0 {
			tr.OnTerminal(finished(strconv.Itoa(i)))
		}
	}
	open := ids(tr.OpenActions())
	if len(open) != 34 {
		t.Fatalf("expected 34 open actions, got %d", len(open))
	}
	for i, id := range open {
		if id != strconv.Itoa(i*3) {
			t.Fatalf("position %d: expected %d, got %s", i, i*3, id)
		}
	}
	for _, id := range open {
		if _, ok := tr.Get(id); !ok {
			t.Fatalf("expected %s to remain reachable after compaction", id)
		}
	}
	tr.OnTerminal(finished("99"))
	if tr.IsOpen("99") {
		t.Fatalf("expected 99 closed after compaction")
	}
}
