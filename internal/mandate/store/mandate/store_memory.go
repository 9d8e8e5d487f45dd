package mandate

import (
	"context"
	"sort"
	"sync"
	"time"

	"agora/internal/mandate/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
)

// InMemoryStore keeps mandates in a map. Reads and writes copy, so callers
// mutate their own copy and persist it with Update.
type InMemoryStore struct {
	mu       sync.RWMutex
	mandates map[id.MandateID]*models.Mandate
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{mandates: make(map[id.MandateID]*models.Mandate)}
}

func (s *InMemoryStore) Create(_ context.Context, m *models.Mandate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.mandates[m.ID]; exists {
		return sentinel.ErrConflict
	}
	s.mandates[m.ID] = m.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, mandateID id.MandateID) (*models.Mandate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mandates[mandateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, m *models.Mandate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mandates[m.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.mandates[m.ID] = m.Clone()
	return nil
}

// ListSweepCandidates returns active mandates whose automation watermark is
// absent or older than now, never-swept first.
func (s *InMemoryStore) ListSweepCandidates(_ context.Context, now time.Time, limit int) ([]*models.Mandate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Mandate
	for _, m := range s.mandates {
		if !m.Status.IsActive() {
			continue
		}
		if m.LastAutomationRunAt != nil && !m.LastAutomationRunAt.Before(now) {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastAutomationRunAt, out[j].LastAutomationRunAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
