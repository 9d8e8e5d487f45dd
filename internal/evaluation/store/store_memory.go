package store

import (
	"context"
	"sort"
	"sync"

	"agora/internal/mandate/models"
	id "agora/pkg/domain"
)

// InMemoryStore keeps the current evaluation per (deliverable, evaluator).
type InMemoryStore struct {
	mu          sync.RWMutex
	evaluations map[id.DeliverableID]map[id.UserRef]models.Evaluation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{evaluations: make(map[id.DeliverableID]map[id.UserRef]models.Evaluation)}
}

// Upsert replaces the evaluator's previous verdict on the deliverable.
func (s *InMemoryStore) Upsert(_ context.Context, e *models.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byEvaluator, ok := s.evaluations[e.DeliverableID]
	if !ok {
		byEvaluator = make(map[id.UserRef]models.Evaluation)
		s.evaluations[e.DeliverableID] = byEvaluator
	}
	byEvaluator[e.Evaluator] = *e
	return nil
}

// ListByDeliverable returns current evaluations ordered by evaluator.
func (s *InMemoryStore) ListByDeliverable(_ context.Context, deliverableID id.DeliverableID) ([]*models.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byEvaluator := s.evaluations[deliverableID]
	out := make([]*models.Evaluation, 0, len(byEvaluator))
	for _, e := range byEvaluator {
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Evaluator < out[j].Evaluator })
	return out, nil
}
