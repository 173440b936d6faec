// Package notify pushes live pipeline status to subscribed observers.
//
// The hub is a fan-out of point-in-time Status snapshots. Delivery is
// best-effort: a subscriber that cannot keep up silently misses
// snapshots (its channel buffer is overwritten by dropping), so a slow
// dashboard can never stall the scheduler. Snapshots are eventually
// consistent with the latest tick - no stronger guarantee is offered.
package notify

import (
	"sync"
	"time"
)

// Status is one point-in-time snapshot of the pipeline.
type Status struct {
	At         time.Time         `json:"at"`
	States     map[string]int    `json:"states"`
	Stages     map[string]string `json:"stages"` // "working" | "idle" per runnable stage
	QueueDepth int               `json:"queue_depth"`
	Claimed    int               `json:"claimed"`
	Total      int               `json:"total"`
}

// Hub broadcasts Status snapshots to subscribers.
//
// Thread-safety: all methods are safe for concurrent use.
type Hub struct {
	mu    sync.Mutex
	next  int
	subs  map[int]chan Status
	last  Status
	seen  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Status)}
}

// Subscribe registers an observer. The returned channel receives every
// snapshot published after the call (plus the most recent one, if any,
// immediately). cancel removes the subscription and closes the channel.
func (h *Hub) Subscribe() (updates <-chan Status, cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Status, 1)
	h.subs[id] = ch

	if h.seen {
		ch <- h.last
	}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Publish fans a snapshot out to all subscribers without blocking.
// A subscriber with a full buffer has its stale snapshot replaced by
// the new one.
func (h *Hub) Publish(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = s
	h.seen = true

	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
			// Buffer full: drop the stale snapshot, then deliver.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Subscribers returns the current subscriber count. Used for tests and
// diagnostics.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
