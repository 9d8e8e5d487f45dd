package models

import (
	"strings"
	"time"

	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

// Status is the lifecycle state of a revocation request.
type Status string

const (
	StatusOpen           Status = "open"
	StatusVoteInProgress Status = "vote_in_progress"
	StatusAccepted       Status = "accepted"
	StatusRejected       Status = "rejected"
	StatusWithdrawn      Status = "withdrawn"
)

var transitions = map[Status][]Status{
	StatusOpen:           {StatusVoteInProgress, StatusWithdrawn},
	StatusVoteInProgress: {StatusAccepted, StatusRejected, StatusWithdrawn},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusVoteInProgress, StatusAccepted, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// IsActive reports whether the request blocks another request on its mandate.
func (s Status) IsActive() bool {
	return s == StatusOpen || s == StatusVoteInProgress
}

func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusWithdrawn
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

const maxReasonLength = 2048

// Request proposes ending a mandate early.
//
// Invariants:
//   - at most one active request per mandate (enforced by the store)
//   - resolution happens exactly once
type Request struct {
	ID         id.RevocationID `json:"id"`
	MandateID  id.MandateID    `json:"mandate_id"`
	Initiator  id.UserRef      `json:"initiator"`
	Reason     string          `json:"reason,omitempty"`
	Status     Status          `json:"status"`
	VoteID     *id.VoteID      `json:"vote_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

func NewRequest(requestID id.RevocationID, mandateID id.MandateID, initiator id.UserRef, reason string, now time.Time) (*Request, error) {
	if mandateID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "mandate ID required")
	}
	if initiator.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "initiator reference required")
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, dErrors.New(dErrors.CodeValidation, "reason must be 2048 characters or less")
	}
	return &Request{
		ID:        requestID,
		MandateID: mandateID,
		Initiator: initiator,
		Reason:    reason,
		Status:    StatusOpen,
		CreatedAt: now,
	}, nil
}

// CanAttachVote allows linking a vote only while the request is open.
func (r *Request) CanAttachVote() error {
	if r.Status != StatusOpen {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "revocation request is %s, vote can only be attached while open", r.Status)
	}
	return nil
}

// ApplyVote links the vote. Call CanAttachVote first.
func (r *Request) ApplyVote(voteID id.VoteID) {
	v := voteID
	r.VoteID = &v
	r.Status = StatusVoteInProgress
}

// CanResolve guards the exactly-once resolution.
func (r *Request) CanResolve() error {
	if r.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeAlreadyResolved, "revocation request already %s", r.Status)
	}
	if r.Status != StatusVoteInProgress {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "revocation request is %s, no vote to resolve", r.Status)
	}
	return nil
}

// ApplyResolution records the vote outcome. Call CanResolve first.
func (r *Request) ApplyResolution(accepted bool, now time.Time) {
	if accepted {
		r.Status = StatusAccepted
	} else {
		r.Status = StatusRejected
	}
	at := now
	r.ResolvedAt = &at
}

func (r *Request) CanWithdraw() error {
	if r.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeAlreadyTerminal, "revocation request already %s", r.Status)
	}
	return nil
}

func (r *Request) ApplyWithdrawal(now time.Time) {
	r.Status = StatusWithdrawn
	at := now
	r.ResolvedAt = &at
}

func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.VoteID != nil {
		v := *r.VoteID
		c.VoteID = &v
	}
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}
