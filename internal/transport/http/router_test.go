package httptransport_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"agora/internal/deadline"
	"agora/internal/evaluation"
	evalhandler "agora/internal/evaluation/handler"
	evalstore "agora/internal/evaluation/store"
	mandatehandler "agora/internal/mandate/handler"
	"agora/internal/mandate/models"
	mandateservice "agora/internal/mandate/service"
	deliverablestore "agora/internal/mandate/store/deliverable"
	mandatestore "agora/internal/mandate/store/mandate"
	"agora/internal/platform/metrics"
	revhandler "agora/internal/revocation/handler"
	revmodels "agora/internal/revocation/models"
	revocationservice "agora/internal/revocation/service"
	revocationstore "agora/internal/revocation/store"
	"agora/internal/sweep"
	httptransport "agora/internal/transport/http"
	votehandler "agora/internal/vote/handler"
	votemodels "agora/internal/vote/models"
	voteservice "agora/internal/vote/service"
	votestore "agora/internal/vote/store"
	"agora/pkg/platform/middleware/requestid"
	"agora/pkg/platform/tx"
	"agora/pkg/testutil"
)

type RouterSuite struct {
	suite.Suite
	router    http.Handler
	now       time.Time
	healthErr error
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	runner := tx.NewShardedRunner(time.Second)
	s.now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s.healthErr = nil

	deliverables := deliverablestore.NewInMemoryStore()
	mandates := mandateservice.New(mandatestore.NewInMemoryStore(), deliverables,
		mandateservice.WithTxRunner(runner),
		mandateservice.WithMetrics(m),
		mandateservice.WithLogger(logger),
		mandateservice.WithDefaults(deadline.Config{
			Term:                 30 * 24 * time.Hour,
			EvaluationWindow:     7 * 24 * time.Hour,
			Quorum:               1,
			RequiredDeliverables: 1,
		}),
	)
	evaluations := evaluation.NewService(evalstore.NewInMemoryStore(), deliverables, mandates,
		evaluation.WithTxRunner(runner),
		evaluation.WithMetrics(m),
		evaluation.WithLogger(logger),
	)
	votes := voteservice.New(votestore.NewInMemoryStore(),
		voteservice.WithTxRunner(runner),
		voteservice.WithMetrics(m),
		voteservice.WithLogger(logger),
	)
	revocations := revocationservice.New(revocationstore.NewInMemoryStore(), mandates, votes,
		revocationservice.WithTxRunner(runner),
		revocationservice.WithMetrics(m),
		revocationservice.WithLogger(logger),
	)
	sweeper := sweep.New(mandates, evaluations,
		sweep.WithTxRunner(runner),
		sweep.WithMetrics(m),
		sweep.WithLogger(logger),
	)

	s.router = httptransport.NewRouter(httptransport.Config{
		Logger: logger,
		Handlers: []httptransport.Registrar{
			mandatehandler.New(mandates, logger),
			evalhandler.New(evaluations, logger),
			votehandler.New(votes, logger),
			revhandler.New(revocations, logger),
		},
		Sweeper:  sweeper,
		Gatherer: reg,
		Health: map[string]httptransport.HealthCheck{
			"store": func(context.Context) error { return s.healthErr },
		},
		Clock: func() time.Time { return s.now },
	})
}

func (s *RouterSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	return testutil.Do(s.T(), s.router, method, path, body)
}

func (s *RouterSuite) assignedMandate() models.Mandate {
	created := testutil.Decode[models.Mandate](s.T(), s.do(http.MethodPost, "/mandates", map[string]any{"proposal": "prop-1"}), http.StatusCreated)
	s.Equal(models.MandateStatusToAssign, created.Status)
	return testutil.Decode[models.Mandate](s.T(),
		s.do(http.MethodPost, "/mandates/"+created.ID.String()+"/assign", map[string]any{"assignee": "alice"}),
		http.StatusOK)
}

func (s *RouterSuite) submit(m models.Mandate) models.Deliverable {
	return testutil.Decode[models.Deliverable](s.T(),
		s.do(http.MethodPost, "/mandates/"+m.ID.String()+"/deliverables", map[string]any{"uploader": "alice", "label": "draft"}),
		http.StatusCreated)
}

func (s *RouterSuite) TestMandateLifecycle() {
	m := s.assignedMandate()
	s.Equal(models.MandateStatusAssigned, m.Status)

	s.Run("assigning twice is refused", func() {
		rr := s.do(http.MethodPost, "/mandates/"+m.ID.String()+"/assign", map[string]any{"assignee": "bob"})
		testutil.AssertError(s.T(), rr, http.StatusConflict, "invalid_transition")
	})

	d := s.submit(m)
	s.Equal(models.DeliverableStatusPending, d.Status)
	s.Equal(s.now.Add(7*24*time.Hour), d.EvaluationDeadlineSnapshot)

	started := testutil.Decode[models.Mandate](s.T(), s.do(http.MethodGet, "/mandates/"+m.ID.String(), nil), http.StatusOK)
	s.Equal(models.MandateStatusInProgress, started.Status)

	res := testutil.Decode[evalhandler.RecordResponse](s.T(),
		s.do(http.MethodPost, "/deliverables/"+d.ID.String()+"/evaluations", map[string]any{"evaluator": "eve", "verdict": "approve"}),
		http.StatusOK)
	s.Equal(models.DeliverableStatusApproved, res.Deliverable.Status)
	s.Require().NotNil(res.Mandate)
	s.Equal(models.MandateStatusCompleted, res.Mandate.Status)

	list := testutil.Decode[map[string][]models.Evaluation](s.T(),
		s.do(http.MethodGet, "/deliverables/"+d.ID.String()+"/evaluations", nil), http.StatusOK)
	s.Len(list["evaluations"], 1)

	s.Run("completed mandate refuses uploads", func() {
		rr := s.do(http.MethodPost, "/mandates/"+m.ID.String()+"/deliverables", map[string]any{"uploader": "alice", "label": "late"})
		testutil.AssertError(s.T(), rr, http.StatusConflict, "already_terminal")
	})
}

func (s *RouterSuite) TestRevocationByVote() {
	m := s.assignedMandate()

	req := testutil.Decode[revmodels.Request](s.T(),
		s.do(http.MethodPost, "/mandates/"+m.ID.String()+"/revocations", map[string]any{"initiator": "bob", "reason": "absent"}),
		http.StatusCreated)
	s.Equal(revmodels.StatusOpen, req.Status)

	s.Run("second active request conflicts", func() {
		rr := s.do(http.MethodPost, "/mandates/"+m.ID.String()+"/revocations", map[string]any{"initiator": "carol"})
		testutil.AssertError(s.T(), rr, http.StatusConflict, "conflicting_request")
	})

	v := testutil.Decode[votemodels.Vote](s.T(), s.do(http.MethodPost, "/votes", map[string]any{
		"type":          "binary",
		"subject":       "revoke alice",
		"options":       []string{"revoke", "keep"},
		"revoke_option": "revoke",
	}), http.StatusCreated)

	attached := testutil.Decode[revmodels.Request](s.T(),
		s.do(http.MethodPost, "/revocations/"+req.ID.String()+"/vote", map[string]any{"vote_id": v.ID.String()}),
		http.StatusOK)
	s.Equal(revmodels.StatusVoteInProgress, attached.Status)

	for voter, option := range map[string]string{"v1": "revoke", "v2": "revoke", "v3": "keep"} {
		rr := s.do(http.MethodPost, "/votes/"+v.ID.String()+"/ballots", map[string]any{
			"voter":   voter,
			"payload": map[string]any{"option_id": option},
		})
		s.Equal(http.StatusOK, rr.Code, rr.Body.String())
	}

	s.Run("wrong ballot shape is rejected", func() {
		rr := s.do(http.MethodPost, "/votes/"+v.ID.String()+"/ballots", map[string]any{
			"voter":   "v4",
			"payload": map[string]any{"option_ids": []string{"revoke"}},
		})
		testutil.AssertError(s.T(), rr, http.StatusBadRequest, "validation")
	})

	res := testutil.Decode[revhandler.ResolveResponse](s.T(),
		s.do(http.MethodPost, "/revocations/"+req.ID.String()+"/close-vote", nil), http.StatusOK)
	s.Equal(revmodels.StatusAccepted, res.Request.Status)
	s.Equal(models.MandateStatusRevoked, res.Mandate.Status)

	s.Run("resolution happens once", func() {
		rr := s.do(http.MethodPost, "/revocations/"+req.ID.String()+"/close-vote", nil)
		testutil.AssertError(s.T(), rr, http.StatusConflict, "already_resolved")
	})

	s.Run("closed vote refuses ballots", func() {
		rr := s.do(http.MethodPost, "/votes/"+v.ID.String()+"/ballots", map[string]any{
			"voter":   "v5",
			"payload": map[string]any{"option_id": "keep"},
		})
		testutil.AssertError(s.T(), rr, http.StatusConflict, "already_terminal")
	})

	closed := testutil.Decode[votemodels.Vote](s.T(), s.do(http.MethodGet, "/votes/"+v.ID.String(), nil), http.StatusOK)
	s.Equal(votemodels.StatusClosed, closed.Status)
	s.Require().NotNil(closed.Result)
	s.True(closed.Result.Accepted)
	s.Equal(3, closed.Result.Ballots)
}

func (s *RouterSuite) TestWithdraw() {
	m := s.assignedMandate()
	req := testutil.Decode[revmodels.Request](s.T(),
		s.do(http.MethodPost, "/mandates/"+m.ID.String()+"/revocations", map[string]any{"initiator": "bob"}),
		http.StatusCreated)

	withdrawn := testutil.Decode[revmodels.Request](s.T(),
		s.do(http.MethodPost, "/revocations/"+req.ID.String()+"/withdraw", nil), http.StatusOK)
	s.Equal(revmodels.StatusWithdrawn, withdrawn.Status)

	list := testutil.Decode[map[string][]revmodels.Request](s.T(),
		s.do(http.MethodGet, "/mandates/"+m.ID.String()+"/revocations", nil), http.StatusOK)
	s.Len(list["revocations"], 1)

	rr := s.do(http.MethodPost, "/mandates/"+m.ID.String()+"/revocations", map[string]any{"initiator": "bob"})
	s.Equal(http.StatusCreated, rr.Code)
}

func (s *RouterSuite) TestRequestErrors() {
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown mandate", http.MethodGet, "/mandates/5f0c2a5e-9a51-4a5e-8f36-1f1f0c6b1d11", nil, http.StatusNotFound, "not_found"},
		{"malformed id", http.MethodGet, "/mandates/not-a-uuid", nil, http.StatusBadRequest, "validation"},
		{"missing proposal", http.MethodPost, "/mandates", map[string]any{"proposal": " "}, http.StatusBadRequest, "validation"},
		{"unknown field", http.MethodPost, "/mandates", map[string]any{"proposal": "p", "owner": "x"}, http.StatusBadRequest, "validation"},
		{"unknown vote type", http.MethodPost, "/votes", map[string]any{"type": "ranked", "options": []string{"a", "b"}}, http.StatusBadRequest, "validation"},
		{"bad duration", http.MethodPost, "/mandates/5f0c2a5e-9a51-4a5e-8f36-1f1f0c6b1d11/assign", map[string]any{"assignee": "a", "config": map[string]any{"term": "forever"}}, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			testutil.AssertError(s.T(), s.do(tt.method, tt.path, tt.body), tt.status, tt.code)
		})
	}
}

func (s *RouterSuite) TestSweepTick() {
	m := s.assignedMandate()
	d := s.submit(m)
	s.now = s.now.Add(8 * 24 * time.Hour)

	report := testutil.Decode[httptransport.SweepResponse](s.T(), s.do(http.MethodPost, "/sweep/tick", nil), http.StatusOK)
	s.Equal(1, report.Visited)
	s.Equal(1, report.Flagged)
	s.Empty(report.Failures)

	flagged := testutil.Decode[models.Deliverable](s.T(), s.do(http.MethodGet, "/deliverables/"+d.ID.String(), nil), http.StatusOK)
	s.Equal(models.DeliverableStatusNonConforming, flagged.Status)
	s.Require().NotNil(flagged.NonConformityFlaggedAt)
	s.Equal(s.now, *flagged.NonConformityFlaggedAt)

	again := testutil.Decode[httptransport.SweepResponse](s.T(), s.do(http.MethodPost, "/sweep/tick", nil), http.StatusOK)
	s.Zero(again.Visited)
}

func (s *RouterSuite) TestHealthMetricsAndRequestID() {
	rr := s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, rr.Code)
	s.NotEmpty(rr.Header().Get(requestid.Header))

	s.healthErr = errors.New("connection refused")
	body := testutil.Decode[map[string]string](s.T(), s.do(http.MethodGet, "/healthz", nil), http.StatusServiceUnavailable)
	s.Equal("degraded", body["status"])
	s.Equal("connection refused", body["store"])

	s.assignedMandate()
	rr = s.do(http.MethodGet, "/metrics", nil)
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "agora_state_transitions_total")
}
