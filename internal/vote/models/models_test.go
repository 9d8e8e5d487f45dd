package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newVote(t *testing.T, voteType Type, options ...string) *Vote {
	t.Helper()
	v, err := NewVote(id.NewVoteID(), voteType, "", options, options[0], "", nil, now)
	require.NoError(t, err)
	return v
}

func TestNewVote(t *testing.T) {
	t.Run("defaults to rejecting ties", func(t *testing.T) {
		v := newVote(t, TypeBinary, "revoke", "keep")
		assert.Equal(t, TieRejects, v.TiePolicy)
		assert.Equal(t, StatusOpen, v.Status)
	})

	cases := []struct {
		name     string
		voteType Type
		options  []string
		revoke   string
		closesAt *time.Time
	}{
		{"unknown type", Type("ranked"), []string{"a", "b"}, "a", nil},
		{"single option", TypeMultipleChoice, []string{"a"}, "a", nil},
		{"binary with three options", TypeBinary, []string{"a", "b", "c"}, "a", nil},
		{"duplicate option", TypeMultipleChoice, []string{"a", " a"}, "a", nil},
		{"blank option", TypeMultipleChoice, []string{"a", " "}, "a", nil},
		{"revoke option missing", TypeBinary, []string{"a", "b"}, "c", nil},
		{"closing in the past", TypeBinary, []string{"a", "b"}, "a", &now},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewVote(id.NewVoteID(), tc.voteType, "", tc.options, tc.revoke, "", tc.closesAt, now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func TestNewBallot(t *testing.T) {
	binary := newVote(t, TypeBinary, "revoke", "keep")
	multi := newVote(t, TypeMultipleChoice, "a", "b", "c")
	mj := newVote(t, TypeMajorityJudgment, "a", "b")

	valid := []struct {
		name    string
		vote    *Vote
		payload Payload
	}{
		{"binary", binary, SingleChoice{OptionID: "keep"}},
		{"multiple choice", multi, MultiChoice{OptionIDs: []string{"a", "c"}}},
		{"majority judgment", mj, Ratings{Ratings: map[string]Grade{"a": GradeGood, "b": GradeReject}}},
	}
	for _, tc := range valid {
		t.Run("accepts "+tc.name, func(t *testing.T) {
			b, err := NewBallot(tc.vote, "voter-1", tc.payload, now)
			require.NoError(t, err)
			assert.Equal(t, tc.vote.ID, b.VoteID)
		})
	}

	invalid := []struct {
		name    string
		vote    *Vote
		payload Payload
	}{
		{"wrong shape", binary, MultiChoice{OptionIDs: []string{"revoke"}}},
		{"unknown option", binary, SingleChoice{OptionID: "maybe"}},
		{"no choice", multi, MultiChoice{}},
		{"duplicate choice", multi, MultiChoice{OptionIDs: []string{"a", "a"}}},
		{"partial ratings", mj, Ratings{Ratings: map[string]Grade{"a": GradeGood}}},
		{"unknown rated option", mj, Ratings{Ratings: map[string]Grade{"a": GradeGood, "z": GradeGood}}},
		{"grade out of scale", mj, Ratings{Ratings: map[string]Grade{"a": GradeGood, "b": Grade(9)}}},
		{"nil payload", binary, nil},
	}
	for _, tc := range invalid {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			_, err := NewBallot(tc.vote, "voter-1", tc.payload, now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}

	t.Run("closed vote refuses ballots", func(t *testing.T) {
		closed := binary.Clone()
		closed.ApplyClose(TallyResult{}, now)
		_, err := NewBallot(closed, "voter-1", SingleChoice{OptionID: "keep"}, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyTerminal))
	})

	t.Run("closing time ends casting", func(t *testing.T) {
		closesAt := now.Add(time.Hour)
		timed, err := NewVote(id.NewVoteID(), TypeBinary, "", []string{"revoke", "keep"}, "revoke", "", &closesAt, now)
		require.NoError(t, err)

		_, err = NewBallot(timed, "voter-1", SingleChoice{OptionID: "keep"}, closesAt.Add(-time.Second))
		require.NoError(t, err)
		_, err = NewBallot(timed, "voter-1", SingleChoice{OptionID: "keep"}, closesAt)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyTerminal), "got %v", err)
	})
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(TypeMajorityJudgment, []byte(`{"ratings":{"a":"good","b":"very_good"}}`))
	require.NoError(t, err)
	assert.Equal(t, Ratings{Ratings: map[string]Grade{"a": GradeGood, "b": GradeVeryGood}}, p)

	_, err = DecodePayload(TypeBinary, []byte(`{"option_ids":["a"]}`))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = DecodePayload(TypeMajorityJudgment, []byte(`{"ratings":{"a":"superb"}}`))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestBallotJSONKeepsPayloadShape(t *testing.T) {
	in := Ballot{
		VoteID:  id.NewVoteID(),
		Voter:   "voter-1",
		Payload: MultiChoice{OptionIDs: []string{"b", "a"}},
		CastAt:  now,
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"multiple_choice"`)

	var out Ballot
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in.Payload, out.Payload)
	assert.Equal(t, in.VoteID, out.VoteID)
}
