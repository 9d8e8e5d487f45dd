package models

import (
	"strings"
	"time"

	"agora/internal/deadline"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

// DeliverableStatus is the evaluation state of a deliverable.
type DeliverableStatus string

const (
	DeliverableStatusPending       DeliverableStatus = "pending"
	DeliverableStatusUnderReview   DeliverableStatus = "under_review"
	DeliverableStatusApproved      DeliverableStatus = "approved"
	DeliverableStatusRejected      DeliverableStatus = "rejected"
	DeliverableStatusNonConforming DeliverableStatus = "non_conforming"
)

var deliverableTransitions = map[DeliverableStatus][]DeliverableStatus{
	DeliverableStatusPending: {
		DeliverableStatusUnderReview, DeliverableStatusApproved,
		DeliverableStatusRejected, DeliverableStatusNonConforming,
	},
	DeliverableStatusUnderReview: {
		DeliverableStatusApproved, DeliverableStatusRejected, DeliverableStatusNonConforming,
	},
}

func (s DeliverableStatus) IsValid() bool {
	switch s {
	case DeliverableStatusPending, DeliverableStatusUnderReview, DeliverableStatusApproved,
		DeliverableStatusRejected, DeliverableStatusNonConforming:
		return true
	}
	return false
}

func (s DeliverableStatus) IsTerminal() bool {
	return s == DeliverableStatusApproved || s == DeliverableStatusRejected || s == DeliverableStatusNonConforming
}

func (s DeliverableStatus) CanTransitionTo(to DeliverableStatus) bool {
	for _, allowed := range deliverableTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s DeliverableStatus) String() string {
	return string(s)
}

const maxLabelLength = 256

// Deliverable is one submission against a mandate.
//
// Invariants:
//   - EvaluationDeadlineSnapshot is fixed at creation
//   - terminal deliverables are immutable
type Deliverable struct {
	ID                         id.DeliverableID  `json:"id"`
	MandateID                  id.MandateID      `json:"mandate_id"`
	Uploader                   id.UserRef        `json:"uploader"`
	Label                      string            `json:"label"`
	Objective                  id.ObjectiveRef   `json:"objective,omitempty"`
	Status                     DeliverableStatus `json:"status"`
	UploadedAt                 time.Time         `json:"uploaded_at"`
	EvaluationDeadlineSnapshot time.Time         `json:"evaluation_deadline"`
	NonConformityFlaggedAt     *time.Time        `json:"non_conformity_flagged_at,omitempty"`
	ResolvedAt                 *time.Time        `json:"resolved_at,omitempty"`
	Metadata                   Metadata          `json:"metadata,omitempty"`
	UpdatedAt                  time.Time         `json:"updated_at"`
}

// NewDeliverable captures the evaluation deadline from cfg at upload time.
func NewDeliverable(
	deliverableID id.DeliverableID,
	mandateID id.MandateID,
	uploader id.UserRef,
	label string,
	objective id.ObjectiveRef,
	cfg deadline.Config,
	now time.Time,
) (*Deliverable, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "deliverable label required")
	}
	if len(label) > maxLabelLength {
		return nil, dErrors.New(dErrors.CodeValidation, "deliverable label must be 256 characters or less")
	}
	if uploader.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "uploader reference required")
	}
	return &Deliverable{
		ID:                         deliverableID,
		MandateID:                  mandateID,
		Uploader:                   uploader,
		Label:                      label,
		Objective:                  id.ObjectiveRef(strings.TrimSpace(string(objective))),
		Status:                     DeliverableStatusPending,
		UploadedAt:                 now,
		EvaluationDeadlineSnapshot: deadline.EvaluationDeadline(now, cfg),
		Metadata:                   Metadata{},
		UpdatedAt:                  now,
	}, nil
}

// CanMoveTo guards an aggregation result. Terminal deliverables report
// CodeAlreadyTerminal.
func (d *Deliverable) CanMoveTo(to DeliverableStatus) error {
	if d.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeAlreadyTerminal, "deliverable is %s", d.Status)
	}
	if d.Status == to {
		return nil
	}
	if !d.Status.CanTransitionTo(to) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "deliverable cannot move from %s to %s", d.Status, to)
	}
	return nil
}

// ApplyStatus sets the status and stamps ResolvedAt on terminal statuses.
func (d *Deliverable) ApplyStatus(to DeliverableStatus, now time.Time) {
	d.Status = to
	d.UpdatedAt = now
	if to.IsTerminal() {
		at := now
		d.ResolvedAt = &at
	}
}

// IsLapsed reports whether the evaluation deadline passed with no resolution.
func (d *Deliverable) IsLapsed(now time.Time) bool {
	return !d.Status.IsTerminal() && deadline.Lapsed(now, d.EvaluationDeadlineSnapshot)
}

// ApplyNonConformityFlag marks a lapsed deliverable. Call IsLapsed first.
func (d *Deliverable) ApplyNonConformityFlag(now time.Time) {
	flagged := now
	d.NonConformityFlaggedAt = &flagged
	d.ApplyStatus(DeliverableStatusNonConforming, now)
}

func (d *Deliverable) Clone() *Deliverable {
	if d == nil {
		return nil
	}
	c := *d
	c.Metadata = d.Metadata.Clone()
	if d.NonConformityFlaggedAt != nil {
		at := *d.NonConformityFlaggedAt
		c.NonConformityFlaggedAt = &at
	}
	if d.ResolvedAt != nil {
		at := *d.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}
