package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

// Grade is a majority-judgment rating. Higher is better.
type Grade int

const (
	GradeReject Grade = iota
	GradeBad
	GradeAverage
	GradeGood
	GradeVeryGood
	GradeExcellent
)

var gradeNames = [...]string{"reject", "bad", "average", "good", "very_good", "excellent"}

func (g Grade) IsValid() bool {
	return g >= GradeReject && g <= GradeExcellent
}

func (g Grade) String() string {
	if !g.IsValid() {
		return fmt.Sprintf("grade(%d)", int(g))
	}
	return gradeNames[g]
}

func (g Grade) MarshalText() ([]byte, error) {
	if !g.IsValid() {
		return nil, fmt.Errorf("invalid grade %d", int(g))
	}
	return []byte(gradeNames[g]), nil
}

func (g *Grade) UnmarshalText(b []byte) error {
	parsed, err := ParseGrade(string(b))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

func ParseGrade(s string) (Grade, error) {
	for i, name := range gradeNames {
		if name == s {
			return Grade(i), nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeValidation, "unknown grade %q", s)
}

// Payload is the type-specific content of a ballot. Exactly one
// implementation matches each vote type.
type Payload interface {
	VoteType() Type
	validate(v *Vote) error
}

// SingleChoice is a binary ballot.
type SingleChoice struct {
	OptionID string `json:"option_id"`
}

// MultiChoice is a multiple-choice ballot.
type MultiChoice struct {
	OptionIDs []string `json:"option_ids"`
}

// Ratings is a majority-judgment ballot grading every option.
type Ratings struct {
	Ratings map[string]Grade `json:"ratings"`
}

func (SingleChoice) VoteType() Type { return TypeBinary }
func (MultiChoice) VoteType() Type  { return TypeMultipleChoice }
func (Ratings) VoteType() Type      { return TypeMajorityJudgment }

func (p SingleChoice) validate(v *Vote) error {
	if !v.HasOption(p.OptionID) {
		return dErrors.Newf(dErrors.CodeValidation, "unknown option %q", p.OptionID)
	}
	return nil
}

func (p MultiChoice) validate(v *Vote) error {
	if len(p.OptionIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one option must be chosen")
	}
	seen := make(map[string]struct{}, len(p.OptionIDs))
	for _, opt := range p.OptionIDs {
		if !v.HasOption(opt) {
			return dErrors.Newf(dErrors.CodeValidation, "unknown option %q", opt)
		}
		if _, dup := seen[opt]; dup {
			return dErrors.Newf(dErrors.CodeValidation, "option %q chosen twice", opt)
		}
		seen[opt] = struct{}{}
	}
	return nil
}

func (p Ratings) validate(v *Vote) error {
	if len(p.Ratings) != len(v.Options) {
		return dErrors.Newf(dErrors.CodeValidation, "every one of the %d options must be rated", len(v.Options))
	}
	for opt, grade := range p.Ratings {
		if !v.HasOption(opt) {
			return dErrors.Newf(dErrors.CodeValidation, "unknown option %q", opt)
		}
		if !grade.IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "invalid grade for option %q", opt)
		}
	}
	return nil
}

// DecodePayload parses raw into the payload shape of voteType. Unknown
// fields are refused, so a ballot of the wrong shape never decodes.
func DecodePayload(voteType Type, raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var (
		payload Payload
		err     error
	)
	switch voteType {
	case TypeBinary:
		var p SingleChoice
		err = dec.Decode(&p)
		payload = p
	case TypeMultipleChoice:
		var p MultiChoice
		err = dec.Decode(&p)
		payload = p
	case TypeMajorityJudgment:
		var p Ratings
		err = dec.Decode(&p)
		payload = p
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown vote type %q", voteType)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "ballot does not match the "+string(voteType)+" shape")
	}
	return payload, nil
}

// Ballot is one voter's current submission on a vote.
type Ballot struct {
	VoteID  id.VoteID
	Voter   id.UserRef
	Payload Payload
	CastAt  time.Time
}

// NewBallot validates payload against the vote's type and options.
func NewBallot(v *Vote, voter id.UserRef, payload Payload, now time.Time) (*Ballot, error) {
	if err := v.CanCast(now); err != nil {
		return nil, err
	}
	if voter.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "voter reference required")
	}
	if payload == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "ballot payload required")
	}
	if payload.VoteType() != v.Type {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s ballot cast on a %s vote", payload.VoteType(), v.Type)
	}
	if err := payload.validate(v); err != nil {
		return nil, err
	}
	return &Ballot{
		VoteID:  v.ID,
		Voter:   voter,
		Payload: payload,
		CastAt:  now,
	}, nil
}

type ballotJSON struct {
	VoteID  id.VoteID       `json:"vote_id"`
	Voter   id.UserRef      `json:"voter"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
	CastAt  time.Time       `json:"cast_at"`
}

func (b Ballot) MarshalJSON() ([]byte, error) {
	if b.Payload == nil {
		return nil, fmt.Errorf("ballot without payload")
	}
	raw, err := json.Marshal(b.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ballotJSON{
		VoteID:  b.VoteID,
		Voter:   b.Voter,
		Type:    b.Payload.VoteType(),
		Payload: raw,
		CastAt:  b.CastAt,
	})
}

func (b *Ballot) UnmarshalJSON(data []byte) error {
	var wire ballotJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	payload, err := DecodePayload(wire.Type, wire.Payload)
	if err != nil {
		return err
	}
	*b = Ballot{VoteID: wire.VoteID, Voter: wire.Voter, Payload: payload, CastAt: wire.CastAt}
	return nil
}

func (b *Ballot) Clone() *Ballot {
	if b == nil {
		return nil
	}
	c := *b
	switch p := b.Payload.(type) {
	case MultiChoice:
		c.Payload = MultiChoice{OptionIDs: slices.Clone(p.OptionIDs)}
	case Ratings:
		c.Payload = Ratings{Ratings: maps.Clone(p.Ratings)}
	}
	return &c
}
