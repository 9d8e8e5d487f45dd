package models

import (
	"strings"
	"time"

	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

// Verdict is one evaluator's judgment on a deliverable.
type Verdict string

const (
	VerdictApprove        Verdict = "approve"
	VerdictReject         Verdict = "reject"
	VerdictRequestChanges Verdict = "request_changes"
)

func (v Verdict) IsValid() bool {
	return v == VerdictApprove || v == VerdictReject || v == VerdictRequestChanges
}

const maxCommentLength = 4096

// Evaluation is the current verdict of one evaluator on one deliverable. A
// later evaluation from the same evaluator replaces it.
type Evaluation struct {
	ID            id.EvaluationID  `json:"id"`
	DeliverableID id.DeliverableID `json:"deliverable_id"`
	Evaluator     id.UserRef       `json:"evaluator"`
	Verdict       Verdict          `json:"verdict"`
	Comment       string           `json:"comment,omitempty"`
	RecordedAt    time.Time        `json:"recorded_at"`
}

func NewEvaluation(
	evaluationID id.EvaluationID,
	deliverableID id.DeliverableID,
	evaluator id.UserRef,
	verdict Verdict,
	comment string,
	now time.Time,
) (*Evaluation, error) {
	if evaluator.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "evaluator reference required")
	}
	if !verdict.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown verdict %q", verdict)
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > maxCommentLength {
		return nil, dErrors.New(dErrors.CodeValidation, "comment must be 4096 characters or less")
	}
	return &Evaluation{
		ID:            evaluationID,
		DeliverableID: deliverableID,
		Evaluator:     evaluator,
		Verdict:       verdict,
		Comment:       comment,
		RecordedAt:    now,
	}, nil
}
