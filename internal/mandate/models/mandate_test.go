package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora/internal/deadline"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

var now = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

var allMandateStatuses = []MandateStatus{
	MandateStatusToAssign, MandateStatusAssigned, MandateStatusInProgress,
	MandateStatusCompleted, MandateStatusRevoked, MandateStatusExpired,
}

func TestMandateStatusGraph(t *testing.T) {
	t.Run("terminal states have no outgoing edges", func(t *testing.T) {
		for _, from := range allMandateStatuses {
			if !from.IsTerminal() {
				continue
			}
			for _, to := range allMandateStatuses {
				assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
			}
		}
	})

	t.Run("no edge leads back to to_assign", func(t *testing.T) {
		for _, from := range allMandateStatuses {
			assert.False(t, from.CanTransitionTo(MandateStatusToAssign), from)
		}
	})

	t.Run("in_progress cannot go back to assigned", func(t *testing.T) {
		assert.False(t, MandateStatusInProgress.CanTransitionTo(MandateStatusAssigned))
	})
}

func TestMandateAssignment(t *testing.T) {
	cfg := deadline.Config{
		Term:                 30 * 24 * time.Hour,
		EvaluationWindow:     7 * 24 * time.Hour,
		Quorum:               2,
		RequiredDeliverables: 1,
		ObjectiveQuorums:     map[string]int{"roads": 3},
	}

	t.Run("assign from to_assign snapshots configuration", func(t *testing.T) {
		m, err := NewMandate(id.NewMandateID(), "proposal-1", now)
		require.NoError(t, err)
		require.NoError(t, m.CanAssign("alice"))
		m.ApplyAssignment("alice", cfg, now)

		assert.Equal(t, MandateStatusAssigned, m.Status)
		assert.Equal(t, id.UserRef("alice"), m.Assignee)
		got, err := m.Config()
		require.NoError(t, err)
		assert.Equal(t, cfg.Term, got.Term)
		assert.Equal(t, 3, got.QuorumFor("roads"))
		assert.Equal(t, 2, got.QuorumFor("other"))

		at, ok, err := m.Deadline()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, now.Add(cfg.Term), at)
	})

	t.Run("second assignment is an invalid transition", func(t *testing.T) {
		m, err := NewMandate(id.NewMandateID(), "proposal-1", now)
		require.NoError(t, err)
		m.ApplyAssignment("alice", cfg, now)

		err = m.CanAssign("bob")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		assert.Equal(t, id.UserRef("alice"), m.Assignee)
	})

	t.Run("missing assignee is a validation error", func(t *testing.T) {
		m, err := NewMandate(id.NewMandateID(), "proposal-1", now)
		require.NoError(t, err)
		assert.True(t, dErrors.HasCode(m.CanAssign(" "), dErrors.CodeValidation))
	})

	t.Run("unassigned mandate has no snapshot", func(t *testing.T) {
		m, err := NewMandate(id.NewMandateID(), "proposal-1", now)
		require.NoError(t, err)
		_, err = m.Config()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestMandateAcceptsDeliverables(t *testing.T) {
	m, err := NewMandate(id.NewMandateID(), "proposal-1", now)
	require.NoError(t, err)
	assert.True(t, dErrors.HasCode(m.CanAcceptDeliverable(), dErrors.CodeInvalidTransition))

	m.ApplyAssignment("alice", deadline.Config{}, now)
	assert.NoError(t, m.CanAcceptDeliverable())

	m.ApplyTransition(MandateStatusRevoked, now)
	assert.True(t, dErrors.HasCode(m.CanAcceptDeliverable(), dErrors.CodeAlreadyTerminal))
}

func TestStampAutomationRun(t *testing.T) {
	m, err := NewMandate(id.NewMandateID(), "proposal-1", now)
	require.NoError(t, err)

	assert.True(t, m.StampAutomationRun(now))
	assert.False(t, m.StampAutomationRun(now), "same instant does not advance")
	assert.False(t, m.StampAutomationRun(now.Add(-time.Minute)))
	assert.Equal(t, now, *m.LastAutomationRunAt)
	assert.True(t, m.StampAutomationRun(now.Add(time.Minute)))
}

func TestMetadataSnapshot(t *testing.T) {
	t.Run("corrupt duration is internal", func(t *testing.T) {
		md := Metadata{}
		md.PutConfig(deadline.Config{Term: time.Hour})
		md["term"] = "soon"
		_, err := md.Config()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("unknown version is rejected", func(t *testing.T) {
		md := Metadata{"config_version": "9"}
		_, err := md.Config()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("outcomes are counted per status", func(t *testing.T) {
		md := Metadata{}
		md.PutConfig(deadline.Config{Quorum: 2})
		md.PutOutcome(id.NewDeliverableID(), DeliverableStatusApproved)
		md.PutOutcome(id.NewDeliverableID(), DeliverableStatusApproved)
		md.PutOutcome(id.NewDeliverableID(), DeliverableStatusRejected)

		assert.Equal(t, 2, md.CountOutcomes(DeliverableStatusApproved))
		assert.Equal(t, 1, md.CountOutcomes(DeliverableStatusRejected))
		cfg, err := md.Config()
		require.NoError(t, err)
		assert.Empty(t, cfg.ObjectiveQuorums)
	})

	t.Run("clone is independent", func(t *testing.T) {
		m, err := NewMandate(id.NewMandateID(), "proposal-1", now)
		require.NoError(t, err)
		m.ApplyAssignment("alice", deadline.Config{}, now)
		c := m.Clone()
		c.Metadata["term"] = "1h"
		*c.AssignedAt = now.Add(time.Hour)
		assert.NotEqual(t, "1h", m.Metadata["term"])
		assert.Equal(t, now, *m.AssignedAt)
	})
}
