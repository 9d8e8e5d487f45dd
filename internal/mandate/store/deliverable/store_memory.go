package deliverable

import (
	"context"
	"sort"
	"sync"

	"agora/internal/mandate/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu           sync.RWMutex
	deliverables map[id.DeliverableID]*models.Deliverable
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{deliverables: make(map[id.DeliverableID]*models.Deliverable)}
}

func (s *InMemoryStore) Create(_ context.Context, d *models.Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deliverables[d.ID]; exists {
		return sentinel.ErrConflict
	}
	s.deliverables[d.ID] = d.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, deliverableID id.DeliverableID) (*models.Deliverable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliverables[deliverableID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, d *models.Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliverables[d.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.deliverables[d.ID] = d.Clone()
	return nil
}

// ListByMandate returns the mandate's deliverables in upload order.
func (s *InMemoryStore) ListByMandate(_ context.Context, mandateID id.MandateID) ([]*models.Deliverable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Deliverable
	for _, d := range s.deliverables {
		if d.MandateID == mandateID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.Before(out[j].UploadedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
