package store

import (
	"context"
	"sort"
	"sync"

	"agora/internal/vote/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
)

// InMemoryStore keeps votes and the current ballot of each voter.
type InMemoryStore struct {
	mu      sync.RWMutex
	votes   map[id.VoteID]*models.Vote
	ballots map[id.VoteID]map[id.UserRef]*models.Ballot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		votes:   make(map[id.VoteID]*models.Vote),
		ballots: make(map[id.VoteID]map[id.UserRef]*models.Ballot),
	}
}

func (s *InMemoryStore) Create(_ context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.votes[v.ID]; exists {
		return sentinel.ErrConflict
	}
	s.votes[v.ID] = v.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, voteID id.VoteID) (*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[voteID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return v.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.votes[v.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.votes[v.ID] = v.Clone()
	return nil
}

// UpsertBallot replaces any earlier ballot of the same voter.
func (s *InMemoryStore) UpsertBallot(_ context.Context, b *models.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.votes[b.VoteID]; !ok {
		return sentinel.ErrNotFound
	}
	byVoter, ok := s.ballots[b.VoteID]
	if !ok {
		byVoter = make(map[id.UserRef]*models.Ballot)
		s.ballots[b.VoteID] = byVoter
	}
	byVoter[b.Voter] = b.Clone()
	return nil
}

// ListBallots returns current ballots ordered by voter.
func (s *InMemoryStore) ListBallots(_ context.Context, voteID id.VoteID) ([]*models.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Ballot, 0, len(s.ballots[voteID]))
	for _, b := range s.ballots[voteID] {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Voter < out[j].Voter })
	return out, nil
}
