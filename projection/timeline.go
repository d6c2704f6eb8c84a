// Package projection builds in-memory views from observed session events.
// It does not emit events.
package projection

import (
	"context"
	"secure-chat/contract"
	"secure-chat/domain"
	"sync"
)

const DefaultTimelineSize = 100

var _ contract.EventSink = (*Timeline)(nil)

// Timeline keeps the most recent session events and running totals per type.
type Timeline struct {
	mu     sync.RWMutex
	size   int
	events []domain.SessionEvent
	totals map[domain.SessionEventType]int
}

func NewTimeline(size int) *Timeline {
	if size <= 0 {
		size = DefaultTimelineSize
	}
	return &Timeline{size: size, totals: make(map[domain.SessionEventType]int)}
}

func (t *Timeline) Name() string { return "timeline" }

func (t *Timeline) Consume(_ context.Context, e domain.SessionEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals[e.Type]++
	t.events = append(t.events, e)
	if len(t.events) > t.size {
		t.events = t.events[len(t.events)-t.size:]
	}
	return nil
}

// Recent returns a copy of the kept events, oldest first.
func (t *Timeline) Recent() []domain.SessionEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.SessionEvent(nil), t.events...)
}

// Stats are the totals since start, keyed by event type.
func (t *Timeline) Stats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := make(map[string]any, len(t.totals))
	for kind, n := range t.totals {
		stats[string(kind)] = n
	}
	return stats
}
