// Package window keeps the rolling window of recent lifecycle events.
package window

import "github.com/arturn1/log-dashboard/internal/domain"

// DefaultCapacity is the number of events retained by the dashboard.
const DefaultCapacity = 1000

// Buffer is a fixed-capacity circular buffer of lifecycle events in arrival order.
// The oldest event is evicted when an append would exceed capacity.
// Buffer is not safe for concurrent use; callers serialise access.
type Buffer struct {
	entries  []domain.LifecycleEvent
	capacity int
	head     int // index of the next write once the buffer is full
	total    int64
}

// New creates a buffer holding at most capacity events.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]domain.LifecycleEvent, 0, capacity),
		capacity: capacity,
	}
}

// Append adds e at the tail, evicting the head if the buffer is full.
func (b *Buffer) Append(e domain.LifecycleEvent) {
	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, e)
	} else {
		b.entries[b.head] = e
		b.head = (b.head + 1) % b.capacity
	}
	b.total++
}

// Snapshot returns every retained event, oldest first, in a fresh slice.
func (b *Buffer) Snapshot() []domain.LifecycleEvent {
	return b.Recent(len(b.entries))
}

// Recent returns the last k events in arrival order.
func (b *Buffer) Recent(k int) []domain.LifecycleEvent {
	n := len(b.entries)
	if k <= 0 || n == 0 {
		return []domain.LifecycleEvent{}
	}
	if k > n {
		k = n
	}
	out := make([]domain.LifecycleEvent, k)
	// oldest entry lives at head once full, at 0 before that
	start := b.head + (n - k)
	for i := 0; i < k; i++ {
		out[i] = b.entries[(start+i)%n]
	}
	return out
}

// Len returns the number of retained events.
func (b *Buffer) Len() int { return len(b.entries) }

// Cap returns the configured capacity.
func (b *Buffer) Cap() int { return b.capacity }

// Total returns the number of events ever appended.
func (b *Buffer) Total() int64 { return b.total }

// Evicted returns how many events have been dropped by capacity.
func (b *Buffer) Evicted() int64 { return b.total - int64(len(b.entries)) }
