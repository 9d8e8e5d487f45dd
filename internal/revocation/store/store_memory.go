package store

import (
	"context"
	"sort"
	"sync"

	"agora/internal/revocation/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
)

// InMemoryStore enforces at most one active request per mandate and one
// request per vote, matching the unique indexes of the PostgreSQL schema.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RevocationID]*models.Request
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.RevocationID]*models.Request)}
}

func (s *InMemoryStore) Create(_ context.Context, r *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return sentinel.ErrConflict
	}
	if r.Status.IsActive() && s.activeLocked(r.MandateID) != nil {
		return sentinel.ErrConflict
	}
	if other := s.byVoteLocked(r.VoteID); other != nil {
		return sentinel.ErrConflict
	}
	s.requests[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RevocationID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) FindActiveByMandate(_ context.Context, mandateID id.MandateID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.activeLocked(mandateID)
	if r == nil {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// FindByVote returns the request the vote is linked to.
func (s *InMemoryStore) FindByVote(_ context.Context, voteID id.VoteID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.byVoteLocked(&voteID)
	if r == nil {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, r *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if r.Status.IsActive() {
		if other := s.activeLocked(r.MandateID); other != nil && other.ID != r.ID {
			return sentinel.ErrConflict
		}
	}
	if other := s.byVoteLocked(r.VoteID); other != nil && other.ID != r.ID {
		return sentinel.ErrConflict
	}
	s.requests[r.ID] = r.Clone()
	return nil
}

// ListByMandate returns every request of the mandate, oldest first.
func (s *InMemoryStore) ListByMandate(_ context.Context, mandateID id.MandateID) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Request{}
	for _, r := range s.requests {
		if r.MandateID == mandateID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *InMemoryStore) activeLocked(mandateID id.MandateID) *models.Request {
	for _, r := range s.requests {
		if r.MandateID == mandateID && r.Status.IsActive() {
			return r
		}
	}
	return nil
}

func (s *InMemoryStore) byVoteLocked(voteID *id.VoteID) *models.Request {
	if voteID == nil {
		return nil
	}
	for _, r := range s.requests {
		if r.VoteID != nil && *r.VoteID == *voteID {
			return r
		}
	}
	return nil
}
