package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newOpen(t *testing.T) *Request {
	t.Helper()
	r, err := NewRequest(id.NewRevocationID(), id.NewMandateID(), "carol", " inactive ", now)
	require.NoError(t, err)
	return r
}

func TestRequestLifecycle(t *testing.T) {
	t.Run("open to vote to accepted", func(t *testing.T) {
		r := newOpen(t)
		assert.Equal(t, "inactive", r.Reason)
		require.NoError(t, r.CanAttachVote())
		r.ApplyVote(id.NewVoteID())
		assert.Equal(t, StatusVoteInProgress, r.Status)

		require.NoError(t, r.CanResolve())
		r.ApplyResolution(true, now)
		assert.Equal(t, StatusAccepted, r.Status)
		require.NotNil(t, r.ResolvedAt)
	})

	t.Run("second resolve is already resolved", func(t *testing.T) {
		r := newOpen(t)
		r.ApplyVote(id.NewVoteID())
		r.ApplyResolution(false, now)
		assert.True(t, dErrors.HasCode(r.CanResolve(), dErrors.CodeAlreadyResolved))
	})

	t.Run("resolve without a vote is an invalid transition", func(t *testing.T) {
		r := newOpen(t)
		assert.True(t, dErrors.HasCode(r.CanResolve(), dErrors.CodeInvalidTransition))
	})

	t.Run("attach vote twice is an invalid transition", func(t *testing.T) {
		r := newOpen(t)
		r.ApplyVote(id.NewVoteID())
		assert.True(t, dErrors.HasCode(r.CanAttachVote(), dErrors.CodeInvalidTransition))
	})

	t.Run("withdrawn is terminal", func(t *testing.T) {
		r := newOpen(t)
		require.NoError(t, r.CanWithdraw())
		r.ApplyWithdrawal(now)
		assert.False(t, r.Status.IsActive())
		assert.True(t, dErrors.HasCode(r.CanWithdraw(), dErrors.CodeAlreadyTerminal))
		assert.True(t, dErrors.HasCode(r.CanResolve(), dErrors.CodeAlreadyResolved))
	})
}

func TestNewRequestValidation(t *testing.T) {
	_, err := NewRequest(id.NewRevocationID(), id.NewMandateID(), "", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = NewRequest(id.NewRevocationID(), id.MandateID{}, "carol", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
