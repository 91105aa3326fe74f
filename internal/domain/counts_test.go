package domain

import (
	"encoding/json"
	"testing"
	"unicode/utf8"
)

func TestCountsPreservesFirstSeenOrder(t *testing.T) {
	c := NewCounts()
	c.Inc("POST")
	c.Inc("GET")
	c.Inc("POST")
	c.Add("DELETE", 3)

	keys := c.Keys()
	want := []string{"POST", "GET", "DELETE"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d: expected %s, got %s", i, want[i], keys[i])
		}
	}
	values := c.Values()
	if values[0] != 2 || values[1] != 1 || values[2] != 3 {
		t.Fatalf("unexpected values %v", values)
	}
}

func TestCountsMarshalJSONKeepsOrder(t *testing.T) {
	c := NewCounts()
	c.Inc("500")
	c.Inc("200")
	c.Inc("200")
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"500":1,"200":2}` {
		t.Fatalf("unexpected json %s", data)
	}
}

func TestCountsZeroValueAndNil(t *testing.T) {
	var c Counts
	c.Inc("GET")
	if c.Get("GET") != 1 {
		t.Fatalf("expected zero value to be usable")
	}
	var nilCounts *Counts
	if nilCounts.Len() != 0 || nilCounts.Get("GET") != 0 {
		t.Fatalf("expected nil counts to read as empty")
	}
	data, err := json.Marshal(nilCounts)
	if err != nil {
		t.Fatalf("marshal nil: %v", err)
	}
	if string(data) != "null" {
		t.Fatalf("expected null for nil pointer, got %s", data)
	}
}

func TestCountsEqual(t *testing.T) {
	a := NewCounts()
	a.Inc("GET")
	a.Inc("POST")
	b := NewCounts()
	b.Inc("GET")
	b.Inc("POST")
	if !a.Equal(b) {
		t.Fatalf("expected counters to be equal")
	}
	c := NewCounts()
	c.Inc("POST")
	c.Inc("GET")
	if a.Equal(c) {
		t.Fatalf("expected different key order to compare unequal")
	}
}

func TestLifecycleEventDisplayHelpers(t *testing.T) {
	status := 0
	e := LifecycleEvent{ActionID: "0123456789abcdefghij", StatusCode: &status}
	if e.DisplaySession() != AnonymousSession {
		t.Fatalf("expected anonymous session label, got %q", e.DisplaySession())
	}
	if e.ShortID() != "89abcdefghij" {
		t.Fatalf("unexpected short id %q", e.ShortID())
	}
	multi := LifecycleEvent{ActionID: "ação-ñandú-çé-ü"}
	if got := multi.ShortID(); got != "o-ñandú-çé-ü" || !utf8.ValidString(got) {
		t.Fatalf("expected the last 12 characters intact, got %q", got)
	}
	if e.StatusLabel() != "N/A" {
		t.Fatalf("expected zero status to render as N/A, got %q", e.StatusLabel())
	}
	status = 404
	if e.StatusLabel() != "404" {
		t.Fatalf("expected 404, got %q", e.StatusLabel())
	}
}

func TestCountsUnmarshalJSONKeepsOrder(t *testing.T) {
	var m Metrics
	if err := json.Unmarshal([]byte(`{"total_requests":3,"requests_by_method":{"POST":1,"GET":2},"status_distribution":{"500":1}}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := m.RequestsByMethod.Keys(); len(got) != 2 || got[0] != "POST" || got[1] != "GET" {
		t.Fatalf("unexpected key order %v", got)
	}
	if m.RequestsByMethod.Get("GET") != 2 || m.StatusDistribution.Get("500") != 1 {
		t.Fatalf("unexpected counts %v %v", m.RequestsByMethod.Values(), m.StatusDistribution.Values())
	}
	var bad Counts
	if err := json.Unmarshal([]byte(`["GET"]`), &bad); err == nil {
		t.Fatalf("expected error for non-object")
	}
}
