package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

// Type selects the ballot shape and the tally rule.
type Type string

const (
	TypeBinary           Type = "binary"
	TypeMultipleChoice   Type = "multiple_choice"
	TypeMajorityJudgment Type = "majority_judgment"
)

func (t Type) IsValid() bool {
	return t == TypeBinary || t == TypeMultipleChoice || t == TypeMajorityJudgment
}

func (t Type) String() string {
	return string(t)
}

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// TiePolicy decides a binary vote split exactly in half.
type TiePolicy string

const (
	TieRejects TiePolicy = "reject"
	TieAccepts TiePolicy = "accept"
)

func (p TiePolicy) IsValid() bool {
	return p == TieRejects || p == TieAccepts
}

// TallyResult is the outcome of counting a closed vote.
type TallyResult struct {
	WinningOptions []string `json:"winning_options"`
	Accepted       bool     `json:"accepted"`
	// NoResult is set when nothing could be decided: zero ballots, or a
	// majority-judgment tie that survived every elimination round.
	NoResult bool           `json:"no_result,omitempty"`
	Ballots  int            `json:"ballots"`
	Counts   map[string]int `json:"counts,omitempty"`
}

const (
	maxOptions      = 32
	maxOptionLength = 128
	maxSubject      = 256
)

// Vote is one collective decision. Ballots are replaceable until Close.
type Vote struct {
	ID           id.VoteID    `json:"id"`
	Type         Type         `json:"type"`
	Subject      string       `json:"subject,omitempty"`
	Options      []string     `json:"options"`
	RevokeOption string       `json:"revoke_option"`
	TiePolicy    TiePolicy    `json:"tie_policy"`
	Status       Status       `json:"status"`
	ClosesAt     *time.Time   `json:"closes_at,omitempty"`
	Result       *TallyResult `json:"result,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
}

// NewVote validates the option set. Binary votes take exactly two options;
// revokeOption must be one of them.
func NewVote(
	voteID id.VoteID,
	voteType Type,
	subject string,
	options []string,
	revokeOption string,
	tiePolicy TiePolicy,
	closesAt *time.Time,
	now time.Time,
) (*Vote, error) {
	if !voteType.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown vote type %q", voteType)
	}
	if tiePolicy == "" {
		tiePolicy = TieRejects
	}
	if !tiePolicy.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown tie policy %q", tiePolicy)
	}
	subject = strings.TrimSpace(subject)
	if len(subject) > maxSubject {
		return nil, dErrors.New(dErrors.CodeValidation, "subject must be 256 characters or less")
	}

	cleaned := make([]string, 0, len(options))
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "option identifiers must not be empty")
		}
		if len(opt) > maxOptionLength {
			return nil, dErrors.New(dErrors.CodeValidation, "option identifiers must be 128 characters or less")
		}
		if slices.Contains(cleaned, opt) {
			return nil, dErrors.Newf(dErrors.CodeValidation, "duplicate option %q", opt)
		}
		cleaned = append(cleaned, opt)
	}
	switch {
	case len(cleaned) < 2:
		return nil, dErrors.New(dErrors.CodeValidation, "a vote needs at least two options")
	case len(cleaned) > maxOptions:
		return nil, dErrors.Newf(dErrors.CodeValidation, "a vote takes at most %d options", maxOptions)
	case voteType == TypeBinary && len(cleaned) != 2:
		return nil, dErrors.New(dErrors.CodeValidation, "a binary vote takes exactly two options")
	}
	revokeOption = strings.TrimSpace(revokeOption)
	if !slices.Contains(cleaned, revokeOption) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "revoke option %q is not one of the options", revokeOption)
	}
	if closesAt != nil && !closesAt.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "closing time must be in the future")
	}

	return &Vote{
		ID:           voteID,
		Type:         voteType,
		Subject:      subject,
		Options:      cleaned,
		RevokeOption: revokeOption,
		TiePolicy:    tiePolicy,
		Status:       StatusOpen,
		ClosesAt:     closesAt,
		CreatedAt:    now,
	}, nil
}

func (v *Vote) IsClosed() bool {
	return v.Status == StatusClosed
}

func (v *Vote) HasOption(option string) bool {
	return slices.Contains(v.Options, option)
}

// CanCast refuses ballots once the vote is closed or its closing time has
// passed.
func (v *Vote) CanCast(now time.Time) error {
	if v.IsClosed() {
		return dErrors.New(dErrors.CodeAlreadyTerminal, "vote is closed")
	}
	if v.ClosesAt != nil && !now.Before(*v.ClosesAt) {
		return dErrors.New(dErrors.CodeAlreadyTerminal, "voting period has ended")
	}
	return nil
}

// ApplyClose freezes the vote with its tally.
func (v *Vote) ApplyClose(result TallyResult, now time.Time) {
	v.Status = StatusClosed
	v.Result = &result
	at := now
	v.ClosedAt = &at
}

func (v *Vote) Clone() *Vote {
	if v == nil {
		return nil
	}
	c := *v
	c.Options = slices.Clone(v.Options)
	if v.ClosesAt != nil {
		at := *v.ClosesAt
		c.ClosesAt = &at
	}
	if v.ClosedAt != nil {
		at := *v.ClosedAt
		c.ClosedAt = &at
	}
	if v.Result != nil {
		r := v.Result.Clone()
		c.Result = &r
	}
	return &c
}

func (r TallyResult) Clone() TallyResult {
	c := r
	c.WinningOptions = slices.Clone(r.WinningOptions)
	c.Counts = maps.Clone(r.Counts)
	return c
}

// LockKey serializes ballot casting and closing of one vote.
func LockKey(voteID id.VoteID) string {
	return "vote:" + voteID.String()
}
