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

func newTestDeliverable(t *testing.T, window time.Duration) *Deliverable {
	t.Helper()
	d, err := NewDeliverable(id.NewDeliverableID(), id.NewMandateID(), "alice", " report ", "", deadline.Config{EvaluationWindow: window}, now)
	require.NoError(t, err)
	return d
}

func TestNewDeliverable(t *testing.T) {
	d := newTestDeliverable(t, 7*24*time.Hour)
	assert.Equal(t, "report", d.Label)
	assert.Equal(t, DeliverableStatusPending, d.Status)
	assert.Equal(t, now.Add(7*24*time.Hour), d.EvaluationDeadlineSnapshot)

	_, err := NewDeliverable(id.NewDeliverableID(), id.NewMandateID(), "alice", "  ", "", deadline.Config{}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = NewDeliverable(id.NewDeliverableID(), id.NewMandateID(), "", "report", "", deadline.Config{}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDeliverableGuards(t *testing.T) {
	t.Run("pending may resolve directly", func(t *testing.T) {
		d := newTestDeliverable(t, time.Hour)
		assert.NoError(t, d.CanMoveTo(DeliverableStatusApproved))
	})

	t.Run("terminal deliverable is immutable", func(t *testing.T) {
		d := newTestDeliverable(t, time.Hour)
		d.ApplyStatus(DeliverableStatusRejected, now)
		require.NotNil(t, d.ResolvedAt)
		err := d.CanMoveTo(DeliverableStatusApproved)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyTerminal))
	})

	t.Run("under_review cannot return to pending", func(t *testing.T) {
		d := newTestDeliverable(t, time.Hour)
		d.ApplyStatus(DeliverableStatusUnderReview, now)
		assert.True(t, dErrors.HasCode(d.CanMoveTo(DeliverableStatusPending), dErrors.CodeInvalidTransition))
	})
}

func TestDeliverableLapse(t *testing.T) {
	d := newTestDeliverable(t, time.Hour)
	assert.False(t, d.IsLapsed(now.Add(time.Hour)))
	assert.True(t, d.IsLapsed(now.Add(time.Hour+time.Second)))

	flaggedAt := now.Add(2 * time.Hour)
	d.ApplyNonConformityFlag(flaggedAt)
	assert.Equal(t, DeliverableStatusNonConforming, d.Status)
	require.NotNil(t, d.NonConformityFlaggedAt)
	assert.Equal(t, flaggedAt, *d.NonConformityFlaggedAt)
	assert.False(t, d.IsLapsed(now.Add(3*time.Hour)), "terminal deliverables never lapse again")
}

func TestNewEvaluation(t *testing.T) {
	e, err := NewEvaluation(id.NewEvaluationID(), id.NewDeliverableID(), "eve", VerdictApprove, " ok ", now)
	require.NoError(t, err)
	assert.Equal(t, "ok", e.Comment)

	_, err = NewEvaluation(id.NewEvaluationID(), id.NewDeliverableID(), "eve", Verdict("maybe"), "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = NewEvaluation(id.NewEvaluationID(), id.NewDeliverableID(), "", VerdictApprove, "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
