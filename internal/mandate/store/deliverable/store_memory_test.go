package deliverable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"agora/internal/deadline"
	"agora/internal/mandate/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
)

type DeliverableStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func TestDeliverableStoreSuite(t *testing.T) {
	suite.Run(t, new(DeliverableStoreSuite))
}

func (s *DeliverableStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
}

func (s *DeliverableStoreSuite) newDeliverable(mandateID id.MandateID, at time.Time) *models.Deliverable {
	d, err := models.NewDeliverable(id.NewDeliverableID(), mandateID, "alice", "report", "", deadline.Config{EvaluationWindow: time.Hour}, at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, d))
	return d
}

func (s *DeliverableStoreSuite) TestLifecycle() {
	mandateID := id.NewMandateID()
	d := s.newDeliverable(mandateID, s.now)

	s.Run("duplicate create conflicts", func() {
		s.ErrorIs(s.store.Create(s.ctx, d), sentinel.ErrConflict)
	})

	s.Run("update persists status", func() {
		found, err := s.store.FindByID(s.ctx, d.ID)
		s.Require().NoError(err)
		found.ApplyNonConformityFlag(s.now.Add(2 * time.Hour))
		s.Require().NoError(s.store.Update(s.ctx, found))

		again, err := s.store.FindByID(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Equal(models.DeliverableStatusNonConforming, again.Status)
		s.NotNil(again.NonConformityFlaggedAt)
	})

	s.Run("unknown deliverable", func() {
		_, err := s.store.FindByID(s.ctx, id.NewDeliverableID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *DeliverableStoreSuite) TestListByMandate() {
	mandateID := id.NewMandateID()
	second := s.newDeliverable(mandateID, s.now.Add(time.Minute))
	first := s.newDeliverable(mandateID, s.now)
	s.newDeliverable(id.NewMandateID(), s.now)

	out, err := s.store.ListByMandate(s.ctx, mandateID)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal(first.ID, out[0].ID)
	s.Equal(second.ID, out[1].ID)
}
