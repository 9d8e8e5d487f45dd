package memory

import (
	"context"
	"sync"
	"time"

	id "agora/pkg/domain"
	"agora/pkg/platform/outbox"
)

// InMemoryStore keeps outbox rows in insertion order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []outbox.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListPending(_ context.Context, limit int) ([]outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []outbox.Event
	for _, ev := range s.events {
		if ev.PublishedAt != nil {
			continue
		}
		pending = append(pending, ev)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []id.OutboxEventID, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := make(map[id.OutboxEventID]bool, len(ids))
	for _, eventID := range ids {
		marked[eventID] = true
	}
	for i := range s.events {
		if marked[s.events[i].ID] {
			at := publishedAt
			s.events[i].PublishedAt = &at
		}
	}
	return nil
}

// Types returns the event types recorded so far, in insertion order.
func (s *InMemoryStore) Types() []outbox.EventType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]outbox.EventType, len(s.events))
	for i, ev := range s.events {
		types[i] = ev.Type
	}
	return types
}
