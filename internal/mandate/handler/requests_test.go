package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "agora/pkg/domain-errors"
)

func TestAssignRequestValidate(t *testing.T) {
	t.Run("defaults when config is absent", func(t *testing.T) {
		req := &AssignRequest{Assignee: "  alice "}
		require.NoError(t, req.Validate())
		assert.Equal(t, "alice", req.Assignee)
		assert.Nil(t, req.ParsedConfig())
	})

	t.Run("parses durations and normalizes counts", func(t *testing.T) {
		req := &AssignRequest{Assignee: "alice", Config: &ConfigRequest{
			Term:             "720h",
			EvaluationWindow: "48h",
			ObjectiveQuorums: map[string]int{"roads": 3},
		}}
		require.NoError(t, req.Validate())
		cfg := req.ParsedConfig()
		require.NotNil(t, cfg)
		assert.Equal(t, 720*time.Hour, cfg.Term)
		assert.Equal(t, 48*time.Hour, cfg.EvaluationWindow)
		assert.Zero(t, cfg.CureWindow)
		assert.Equal(t, 1, cfg.Quorum)
		assert.Equal(t, 1, cfg.RequiredDeliverables)
		assert.Equal(t, 3, cfg.QuorumFor("roads"))
	})

	cases := []struct {
		name string
		req  AssignRequest
	}{
		{"blank assignee", AssignRequest{Assignee: " "}},
		{"malformed term", AssignRequest{Assignee: "alice", Config: &ConfigRequest{Term: "soon"}}},
		{"negative window", AssignRequest{Assignee: "alice", Config: &ConfigRequest{EvaluationWindow: "-1h"}}},
		{"malformed cure", AssignRequest{Assignee: "alice", Config: &ConfigRequest{CureWindow: "1x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestSubmitDeliverableRequestValidate(t *testing.T) {
	req := &SubmitDeliverableRequest{Uploader: " alice", Label: " report ", Objective: " roads "}
	require.NoError(t, req.Validate())
	assert.Equal(t, "report", req.Label)
	assert.Equal(t, "roads", req.Objective)

	assert.Error(t, (&SubmitDeliverableRequest{Uploader: "alice"}).Validate())
	assert.Error(t, (&SubmitDeliverableRequest{Label: "report"}).Validate())
	assert.Error(t, (&CreateMandateRequest{Proposal: "  "}).Validate())
}
