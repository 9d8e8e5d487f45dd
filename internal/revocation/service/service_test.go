package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"agora/internal/deadline"
	mandatemodels "agora/internal/mandate/models"
	mandateservice "agora/internal/mandate/service"
	deliverablestore "agora/internal/mandate/store/deliverable"
	mandatestore "agora/internal/mandate/store/mandate"
	"agora/internal/revocation/models"
	"agora/internal/revocation/service"
	revocationstore "agora/internal/revocation/store"
	votemodels "agora/internal/vote/models"
	voteservice "agora/internal/vote/service"
	votestore "agora/internal/vote/store"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/outbox"
	outboxmemory "agora/pkg/platform/outbox/store/memory"
	"agora/pkg/platform/tx"
	"agora/pkg/requestcontext"
)

type RevocationSuite struct {
	suite.Suite
	mandates *mandateservice.Service
	votes    *voteservice.Service
	service  *service.Service
	events   *outboxmemory.InMemoryStore
	ctx      context.Context
}

func TestRevocationSuite(t *testing.T) {
	suite.Run(t, new(RevocationSuite))
}

func (s *RevocationSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := tx.NewShardedRunner(time.Second)
	s.events = outboxmemory.NewInMemoryStore()
	s.mandates = mandateservice.New(mandatestore.NewInMemoryStore(), deliverablestore.NewInMemoryStore(),
		mandateservice.WithTxRunner(runner),
		mandateservice.WithOutbox(s.events),
		mandateservice.WithLogger(logger),
	)
	s.votes = voteservice.New(votestore.NewInMemoryStore(),
		voteservice.WithTxRunner(runner),
		voteservice.WithOutbox(s.events),
		voteservice.WithLogger(logger),
	)
	s.service = service.New(revocationstore.NewInMemoryStore(), s.mandates, s.votes,
		service.WithTxRunner(runner),
		service.WithOutbox(s.events),
		service.WithLogger(logger),
	)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 8, 3, 14, 0, 0, 0, time.UTC))
}

func (s *RevocationSuite) assignedMandate() *mandatemodels.Mandate {
	m, err := s.mandates.Create(s.ctx, "proposal-7")
	s.Require().NoError(err)
	m, err = s.mandates.Assign(s.ctx, m.ID, "alice", nil)
	s.Require().NoError(err)
	return m
}

func (s *RevocationSuite) binaryVote() *votemodels.Vote {
	v, err := s.votes.CreateVote(s.ctx, voteservice.CreateVoteCommand{
		Type:         votemodels.TypeBinary,
		Subject:      "revocation",
		Options:      []string{"revoke", "keep"},
		RevokeOption: "revoke",
	})
	s.Require().NoError(err)
	return v
}

func (s *RevocationSuite) voting(m *mandatemodels.Mandate) (*models.Request, *votemodels.Vote) {
	r, err := s.service.Open(s.ctx, m.ID, "initiator", "inactive")
	s.Require().NoError(err)
	v := s.binaryVote()
	r, err = s.service.AttachVote(s.ctx, r.ID, v.ID)
	s.Require().NoError(err)
	return r, v
}

func (s *RevocationSuite) cast(v *votemodels.Vote, choices ...string) {
	for i, choice := range choices {
		voter := id.UserRef("voter-" + string(rune('a'+i)))
		_, err := s.votes.CastBallot(s.ctx, v.ID, voter, votemodels.SingleChoice{OptionID: choice})
		s.Require().NoError(err)
	}
}

func (s *RevocationSuite) TestAcceptedVoteRevokesMandate() {
	m := s.assignedMandate()
	r, v := s.voting(m)
	s.Equal(models.StatusVoteInProgress, r.Status)

	s.cast(v, "revoke", "revoke", "keep")
	res, err := s.service.CloseVote(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, res.Request.Status)
	s.NotNil(res.Request.ResolvedAt)
	s.Equal(mandatemodels.MandateStatusRevoked, res.Mandate.Status)

	stored, err := s.mandates.Get(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(mandatemodels.MandateStatusRevoked, stored.Status)
	s.Contains(s.events.Types(), outbox.EventMandateRevoked)
	s.Contains(s.events.Types(), outbox.EventRevocationResolved)
}

func (s *RevocationSuite) TestRejectedVoteKeepsMandate() {
	m := s.assignedMandate()
	r, v := s.voting(m)
	s.cast(v, "revoke", "keep")

	res, err := s.service.CloseVote(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, res.Request.Status)
	s.Equal(mandatemodels.MandateStatusAssigned, res.Mandate.Status)

	s.Run("mandate can face a new request", func() {
		_, err := s.service.Open(s.ctx, m.ID, "someone-else", "")
		s.NoError(err)
	})
}

func (s *RevocationSuite) TestResolveExactlyOnce() {
	m := s.assignedMandate()
	r, v := s.voting(m)
	s.cast(v, "revoke")
	_, err := s.service.CloseVote(s.ctx, r.ID)
	s.Require().NoError(err)

	_, err = s.service.Resolve(s.ctx, r.ID, votemodels.TallyResult{Accepted: false})
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
	_, err = s.service.CloseVote(s.ctx, r.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))

	stored, err := s.service.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, stored.Status)
}

func (s *RevocationSuite) TestOpenConflicts() {
	m := s.assignedMandate()
	_, err := s.service.Open(s.ctx, m.ID, "amy", "inactive")
	s.Require().NoError(err)

	_, err = s.service.Open(s.ctx, m.ID, "bob", "also inactive")
	s.True(dErrors.HasCode(err, dErrors.CodeConflictingRequest))

	s.Run("still conflicts while voting", func() {
		list, err := s.service.ListByMandate(s.ctx, m.ID)
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		_, err = s.service.AttachVote(s.ctx, list[0].ID, s.binaryVote().ID)
		s.Require().NoError(err)

		_, err = s.service.Open(s.ctx, m.ID, "bob", "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflictingRequest))
	})
}

func (s *RevocationSuite) TestGuards() {
	s.Run("attach twice", func() {
		r, _ := s.voting(s.assignedMandate())
		_, err := s.service.AttachVote(s.ctx, r.ID, s.binaryVote().ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("attach closed vote", func() {
		r, err := s.service.Open(s.ctx, s.assignedMandate().ID, "amy", "")
		s.Require().NoError(err)
		v := s.binaryVote()
		_, err = s.votes.Close(s.ctx, v.ID)
		s.Require().NoError(err)
		_, err = s.service.AttachVote(s.ctx, r.ID, v.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyTerminal))
	})

	s.Run("resolve without vote", func() {
		r, err := s.service.Open(s.ctx, s.assignedMandate().ID, "amy", "")
		s.Require().NoError(err)
		_, err = s.service.Resolve(s.ctx, r.ID, votemodels.TallyResult{Accepted: true})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("open on terminal mandate", func() {
		m := s.assignedMandate()
		r, v := s.voting(m)
		s.cast(v, "revoke")
		_, err := s.service.CloseVote(s.ctx, r.ID)
		s.Require().NoError(err)
		_, err = s.service.Open(s.ctx, m.ID, "amy", "")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyTerminal))
	})

	s.Run("open on unassigned mandate", func() {
		m, err := s.mandates.Create(s.ctx, "proposal-8")
		s.Require().NoError(err)
		_, err = s.service.Open(s.ctx, m.ID, "amy", "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), "got %v", err)

		list, err := s.service.ListByMandate(s.ctx, m.ID)
		s.Require().NoError(err)
		s.Empty(list)
	})

	s.Run("vote already decides another request", func() {
		first, v := s.voting(s.assignedMandate())
		other, err := s.service.Open(s.ctx, s.assignedMandate().ID, "amy", "")
		s.Require().NoError(err)

		_, err = s.service.AttachVote(s.ctx, other.ID, v.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflictingRequest), "got %v", err)

		stored, err := s.service.Get(s.ctx, other.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusOpen, stored.Status)
		s.Nil(stored.VoteID)
		s.Equal(models.StatusVoteInProgress, first.Status)
	})

	s.Run("unknown mandate", func() {
		_, err := s.service.Open(s.ctx, id.NewMandateID(), "amy", "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RevocationSuite) TestWithdraw() {
	m := s.assignedMandate()
	r, _ := s.voting(m)

	withdrawn, err := s.service.Withdraw(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusWithdrawn, withdrawn.Status)

	_, err = s.service.Withdraw(s.ctx, r.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyTerminal))
	_, err = s.service.CloseVote(s.ctx, r.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))

	stored, err := s.mandates.Get(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(mandatemodels.MandateStatusAssigned, stored.Status)
}

func (s *RevocationSuite) TestMandateExpiredDuringVote() {
	m, err := s.mandates.Create(s.ctx, "proposal-9")
	s.Require().NoError(err)
	m, err = s.mandates.Assign(s.ctx, m.ID, "alice", &deadline.Config{Term: 24 * time.Hour, Quorum: 1, RequiredDeliverables: 1})
	s.Require().NoError(err)
	r, v := s.voting(m)
	s.cast(v, "revoke", "revoke", "keep")

	later := requestcontext.Now(s.ctx).Add(48 * time.Hour)
	swept, err := s.mandates.SweepLapse(s.ctx, m.ID, later)
	s.Require().NoError(err)
	s.Require().True(swept.Expired)

	res, err := s.service.CloseVote(requestcontext.WithTime(s.ctx, later), r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusWithdrawn, res.Request.Status)
	s.Equal(mandatemodels.MandateStatusExpired, res.Mandate.Status)
	s.Contains(s.events.Types(), outbox.EventRevocationWithdrawn)

	stored, err := s.service.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusWithdrawn, stored.Status)
	s.Require().NotNil(stored.ResolvedAt)

	_, err = s.service.CloseVote(s.ctx, r.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
	_, err = s.service.Open(s.ctx, m.ID, "bob", "")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyTerminal))

	closed, err := s.votes.Get(s.ctx, v.ID)
	s.Require().NoError(err)
	s.True(closed.IsClosed())
	s.True(closed.Result.Accepted)
}
