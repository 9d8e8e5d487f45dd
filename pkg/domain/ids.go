// Package domain holds typed identifiers shared across engine modules.
//
// Engine-owned entities (mandates, deliverables, evaluations, revocation
// requests, votes) use UUID-backed IDs so the compiler keeps them apart.
// References to entities owned by collaborators (users, proposals,
// objectives) are opaque strings: no identity logic lives in this engine.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "agora/pkg/domain-errors"
)

type (
	MandateID     uuid.UUID
	DeliverableID uuid.UUID
	EvaluationID  uuid.UUID
	RevocationID  uuid.UUID
	VoteID        uuid.UUID
	OutboxEventID uuid.UUID
)

// UserRef is an opaque reference to an assignee, uploader, evaluator,
// initiator or voter.
type UserRef string

// ProposalRef is an opaque reference to the proposal a mandate is held over.
type ProposalRef string

// ObjectiveRef optionally ties a deliverable to a proposal objective.
type ObjectiveRef string

func (id MandateID) String() string     { return uuid.UUID(id).String() }
func (id DeliverableID) String() string { return uuid.UUID(id).String() }
func (id EvaluationID) String() string  { return uuid.UUID(id).String() }
func (id RevocationID) String() string  { return uuid.UUID(id).String() }
func (id VoteID) String() string        { return uuid.UUID(id).String() }
func (id OutboxEventID) String() string { return uuid.UUID(id).String() }

// Text marshaling keeps IDs in canonical string form on the wire and in JSON
// payloads.
func (id MandateID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id DeliverableID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EvaluationID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id RevocationID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id VoteID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id OutboxEventID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *MandateID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DeliverableID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EvaluationID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RevocationID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *VoteID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *OutboxEventID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id MandateID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DeliverableID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RevocationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id VoteID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

func (r UserRef) String() string      { return string(r) }
func (r ProposalRef) String() string  { return string(r) }
func (r ObjectiveRef) String() string { return string(r) }

func (r UserRef) IsEmpty() bool      { return strings.TrimSpace(string(r)) == "" }
func (r ProposalRef) IsEmpty() bool  { return strings.TrimSpace(string(r)) == "" }
func (r ObjectiveRef) IsEmpty() bool { return strings.TrimSpace(string(r)) == "" }

func NewMandateID() MandateID         { return MandateID(uuid.New()) }
func NewDeliverableID() DeliverableID { return DeliverableID(uuid.New()) }
func NewEvaluationID() EvaluationID   { return EvaluationID(uuid.New()) }
func NewRevocationID() RevocationID   { return RevocationID(uuid.New()) }
func NewVoteID() VoteID               { return VoteID(uuid.New()) }
func NewOutboxEventID() OutboxEventID { return OutboxEventID(uuid.New()) }

// ParseMandateID parses external input into a MandateID.
func ParseMandateID(s string) (MandateID, error) {
	u, err := parseUUID(s, "mandate")
	return MandateID(u), err
}

// ParseDeliverableID parses external input into a DeliverableID.
func ParseDeliverableID(s string) (DeliverableID, error) {
	u, err := parseUUID(s, "deliverable")
	return DeliverableID(u), err
}

// ParseRevocationID parses external input into a RevocationID.
func ParseRevocationID(s string) (RevocationID, error) {
	u, err := parseUUID(s, "revocation request")
	return RevocationID(u), err
}

// ParseVoteID parses external input into a VoteID.
func ParseVoteID(s string) (VoteID, error) {
	u, err := parseUUID(s, "vote")
	return VoteID(u), err
}

// parseUUID enforces the trust-boundary invariant: the ID is a valid,
// non-nil UUID.
func parseUUID(s, kind string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s ID required", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "invalid %s ID", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s ID cannot be nil", kind)
	}
	return u, nil
}
