//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"agora/internal/deadline"
	"agora/internal/evaluation/store"
	"agora/internal/mandate/models"
	"agora/internal/mandate/store/deliverable"
	"agora/internal/mandate/store/mandate"
	id "agora/pkg/domain"
	"agora/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres    *containers.PostgresContainer
	store       *store.PostgresStore
	deliverable *models.Deliverable
	now         time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateAll(ctx))
	s.now = time.Now().UTC().Truncate(time.Microsecond)

	cfg := deadline.Config{Term: 72 * time.Hour, EvaluationWindow: time.Hour, Quorum: 2, RequiredDeliverables: 1}
	m, err := models.NewMandate(id.NewMandateID(), "proposal-1", s.now)
	s.Require().NoError(err)
	m.ApplyAssignment("alice", cfg, s.now)
	s.Require().NoError(mandate.NewPostgres(s.postgres.DB).Create(ctx, m))

	d, err := models.NewDeliverable(id.NewDeliverableID(), m.ID, "alice", "report", "", cfg, s.now)
	s.Require().NoError(err)
	s.Require().NoError(deliverable.NewPostgres(s.postgres.DB).Create(ctx, d))
	s.deliverable = d
}

func (s *PostgresStoreSuite) record(evaluator id.UserRef, verdict models.Verdict, at time.Time) {
	e, err := models.NewEvaluation(id.NewEvaluationID(), s.deliverable.ID, evaluator, verdict, "", at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Upsert(context.Background(), e))
}

func (s *PostgresStoreSuite) TestOneCurrentVerdictPerEvaluator() {
	s.record("eve", models.VerdictReject, s.now)
	s.record("bob", models.VerdictApprove, s.now)
	s.record("eve", models.VerdictApprove, s.now.Add(time.Minute))

	list, err := s.store.ListByDeliverable(context.Background(), s.deliverable.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(id.UserRef("bob"), list[0].Evaluator)
	s.Equal(id.UserRef("eve"), list[1].Evaluator)
	s.Equal(models.VerdictApprove, list[1].Verdict)
	s.True(list[1].RecordedAt.Equal(s.now.Add(time.Minute)))
}
