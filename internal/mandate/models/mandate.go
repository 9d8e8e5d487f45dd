package models

import (
	"time"

	"agora/internal/deadline"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

// MandateStatus is the lifecycle state of a mandate.
type MandateStatus string

const (
	MandateStatusToAssign   MandateStatus = "to_assign"
	MandateStatusAssigned   MandateStatus = "assigned"
	MandateStatusInProgress MandateStatus = "in_progress"
	MandateStatusCompleted  MandateStatus = "completed"
	MandateStatusRevoked    MandateStatus = "revoked"
	MandateStatusExpired    MandateStatus = "expired"
)

// mandateTransitions is the directed lifecycle graph. Terminal states have no
// outgoing edges.
var mandateTransitions = map[MandateStatus][]MandateStatus{
	MandateStatusToAssign:   {MandateStatusAssigned},
	MandateStatusAssigned:   {MandateStatusInProgress, MandateStatusCompleted, MandateStatusRevoked, MandateStatusExpired},
	MandateStatusInProgress: {MandateStatusCompleted, MandateStatusRevoked, MandateStatusExpired},
}

func (s MandateStatus) IsValid() bool {
	switch s {
	case MandateStatusToAssign, MandateStatusAssigned, MandateStatusInProgress,
		MandateStatusCompleted, MandateStatusRevoked, MandateStatusExpired:
		return true
	}
	return false
}

func (s MandateStatus) IsTerminal() bool {
	return s == MandateStatusCompleted || s == MandateStatusRevoked || s == MandateStatusExpired
}

// IsActive reports whether the mandate is held by an assignee and still open.
func (s MandateStatus) IsActive() bool {
	return s == MandateStatusAssigned || s == MandateStatusInProgress
}

func (s MandateStatus) CanTransitionTo(to MandateStatus) bool {
	for _, allowed := range mandateTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s MandateStatus) String() string {
	return string(s)
}

// Mandate is the aggregate root for a time-bounded assignment over a proposal.
//
// Invariants:
//   - Status only moves along mandateTransitions
//   - Metadata holds the configuration snapshot taken at assignment
//   - LastAutomationRunAt never moves backwards
type Mandate struct {
	ID                  id.MandateID   `json:"id"`
	Proposal            id.ProposalRef `json:"proposal"`
	Assignee            id.UserRef     `json:"assignee,omitempty"`
	Status              MandateStatus  `json:"status"`
	Metadata            Metadata       `json:"metadata"`
	AssignedAt          *time.Time     `json:"assigned_at,omitempty"`
	LastAutomationRunAt *time.Time     `json:"last_automation_run_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func NewMandate(mandateID id.MandateID, proposal id.ProposalRef, now time.Time) (*Mandate, error) {
	if mandateID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "mandate ID required")
	}
	if proposal.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "proposal reference required")
	}
	return &Mandate{
		ID:        mandateID,
		Proposal:  proposal,
		Status:    MandateStatusToAssign,
		Metadata:  Metadata{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransitionTo checks the lifecycle graph. Terminal sources report
// CodeInvalidTransition too: the state machine has no path out of them.
func (m *Mandate) CanTransitionTo(to MandateStatus) error {
	if !m.Status.CanTransitionTo(to) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "mandate cannot move from %s to %s", m.Status, to)
	}
	return nil
}

// ApplyTransition sets the status. Call CanTransitionTo first.
func (m *Mandate) ApplyTransition(to MandateStatus, now time.Time) {
	m.Status = to
	m.UpdatedAt = now
}

// CanAssign checks assignment from to_assign.
func (m *Mandate) CanAssign(assignee id.UserRef) error {
	if assignee.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "assignee reference required")
	}
	return m.CanTransitionTo(MandateStatusAssigned)
}

// ApplyAssignment records the assignee and freezes cfg as the mandate's
// configuration snapshot. Call CanAssign first.
func (m *Mandate) ApplyAssignment(assignee id.UserRef, cfg deadline.Config, now time.Time) {
	m.Assignee = assignee
	assignedAt := now
	m.AssignedAt = &assignedAt
	if m.Metadata == nil {
		m.Metadata = Metadata{}
	}
	m.Metadata.PutConfig(cfg)
	m.ApplyTransition(MandateStatusAssigned, now)
}

// CanAcceptDeliverable reports whether uploads are allowed in the current state.
func (m *Mandate) CanAcceptDeliverable() error {
	if m.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeAlreadyTerminal, "mandate is %s", m.Status)
	}
	if !m.Status.IsActive() {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "mandate is %s and cannot receive deliverables", m.Status)
	}
	return nil
}

// Config decodes the configuration snapshot.
func (m *Mandate) Config() (deadline.Config, error) {
	return m.Metadata.Config()
}

// Deadline is the overall lapse deadline derived from the snapshot.
func (m *Mandate) Deadline() (time.Time, bool, error) {
	cfg, err := m.Config()
	if err != nil {
		return time.Time{}, false, err
	}
	at, ok := deadline.MandateDeadline(m.AssignedAt, cfg)
	return at, ok, nil
}

// StampAutomationRun advances the automation watermark. Earlier stamps are
// ignored so the watermark stays non-decreasing.
func (m *Mandate) StampAutomationRun(now time.Time) bool {
	if m.LastAutomationRunAt != nil && !now.After(*m.LastAutomationRunAt) {
		return false
	}
	at := now
	m.LastAutomationRunAt = &at
	m.UpdatedAt = now
	return true
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (m *Mandate) Clone() *Mandate {
	if m == nil {
		return nil
	}
	c := *m
	c.Metadata = m.Metadata.Clone()
	if m.AssignedAt != nil {
		at := *m.AssignedAt
		c.AssignedAt = &at
	}
	if m.LastAutomationRunAt != nil {
		at := *m.LastAutomationRunAt
		c.LastAutomationRunAt = &at
	}
	return &c
}
