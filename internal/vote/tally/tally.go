// Package tally resolves a set of ballots into a vote outcome. It is pure:
// no I/O, no clock, and results do not depend on ballot order.
//
// Ballots are validated when cast. Anything reaching Tally that does not fit
// the vote is a data-integrity problem and fails with CodeInvalidBallotSet.
package tally

import (
	"slices"

	"agora/internal/vote/models"
	dErrors "agora/pkg/domain-errors"
)

// Rules is what the tally needs to know about a vote.
type Rules struct {
	Type         models.Type
	Options      []string
	RevokeOption string
	TiePolicy    models.TiePolicy
}

func RulesOf(v *models.Vote) Rules {
	return Rules{
		Type:         v.Type,
		Options:      slices.Clone(v.Options),
		RevokeOption: v.RevokeOption,
		TiePolicy:    v.TiePolicy,
	}
}

// Tally counts ballots under rules. Zero ballots never accept.
func Tally(rules Rules, ballots []*models.Ballot) (models.TallyResult, error) {
	if err := checkRules(rules); err != nil {
		return models.TallyResult{}, err
	}
	if len(ballots) == 0 {
		return models.TallyResult{WinningOptions: []string{}, NoResult: true}, nil
	}
	if err := checkVoters(ballots); err != nil {
		return models.TallyResult{}, err
	}

	switch rules.Type {
	case models.TypeBinary:
		return binary(rules, ballots)
	case models.TypeMultipleChoice:
		return plurality(rules, ballots)
	default:
		return majorityJudgment(rules, ballots)
	}
}

func checkRules(rules Rules) error {
	if !rules.Type.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidBallotSet, "unknown vote type %q", rules.Type)
	}
	if len(rules.Options) < 2 {
		return dErrors.New(dErrors.CodeInvalidBallotSet, "vote has fewer than two options")
	}
	if rules.Type == models.TypeBinary && len(rules.Options) != 2 {
		return dErrors.New(dErrors.CodeInvalidBallotSet, "binary vote must have two options")
	}
	if !slices.Contains(rules.Options, rules.RevokeOption) {
		return dErrors.Newf(dErrors.CodeInvalidBallotSet, "revoke option %q is not an option", rules.RevokeOption)
	}
	return nil
}

func checkVoters(ballots []*models.Ballot) error {
	seen := make(map[string]struct{}, len(ballots))
	for _, b := range ballots {
		if b == nil || b.Payload == nil {
			return dErrors.New(dErrors.CodeInvalidBallotSet, "empty ballot")
		}
		if _, dup := seen[string(b.Voter)]; dup {
			return dErrors.Newf(dErrors.CodeInvalidBallotSet, "voter %q has more than one ballot", b.Voter)
		}
		seen[string(b.Voter)] = struct{}{}
	}
	return nil
}

// binary accepts when the revoke option holds strictly more than half of the
// ballots. An exact split follows the tie policy.
func binary(rules Rules, ballots []*models.Ballot) (models.TallyResult, error) {
	counts := zeroCounts(rules.Options)
	for _, b := range ballots {
		choice, ok := b.Payload.(models.SingleChoice)
		if !ok {
			return models.TallyResult{}, dErrors.Newf(dErrors.CodeInvalidBallotSet, "%s ballot in a binary vote", b.Payload.VoteType())
		}
		if _, known := counts[choice.OptionID]; !known {
			return models.TallyResult{}, dErrors.Newf(dErrors.CodeInvalidBallotSet, "ballot chose unknown option %q", choice.OptionID)
		}
		counts[choice.OptionID]++
	}

	total := len(ballots)
	revoke := counts[rules.RevokeOption]
	result := models.TallyResult{
		WinningOptions: leaders(rules.Options, counts),
		Ballots:        total,
		Counts:         counts,
	}
	switch {
	case revoke*2 > total:
		result.Accepted = true
	case revoke*2 == total:
		result.Accepted = rules.TiePolicy == models.TieAccepts
	}
	return result, nil
}

// plurality gives each selected option one vote per ballot. The revoke option
// must be the sole leader to accept.
func plurality(rules Rules, ballots []*models.Ballot) (models.TallyResult, error) {
	counts := zeroCounts(rules.Options)
	for _, b := range ballots {
		choice, ok := b.Payload.(models.MultiChoice)
		if !ok {
			return models.TallyResult{}, dErrors.Newf(dErrors.CodeInvalidBallotSet, "%s ballot in a multiple-choice vote", b.Payload.VoteType())
		}
		if len(choice.OptionIDs) == 0 {
			return models.TallyResult{}, dErrors.Newf(dErrors.CodeInvalidBallotSet, "ballot from %q selects nothing", b.Voter)
		}
		picked := make(map[string]struct{}, len(choice.OptionIDs))
		for _, opt := range choice.OptionIDs {
			if _, known := counts[opt]; !known {
				return models.TallyResult{}, dErrors.Newf(dErrors.CodeInvalidBallotSet, "ballot chose unknown option %q", opt)
			}
			if _, dup := picked[opt]; dup {
				return models.TallyResult{}, dErrors.Newf(dErrors.CodeInvalidBallotSet, "ballot chose %q twice", opt)
			}
			picked[opt] = struct{}{}
			counts[opt]++
		}
	}

	winners := leaders(rules.Options, counts)
	return models.TallyResult{
		WinningOptions: winners,
		Accepted:       len(winners) == 1 && winners[0] == rules.RevokeOption,
		Ballots:        len(ballots),
		Counts:         counts,
	}, nil
}

func zeroCounts(options []string) map[string]int {
	counts := make(map[string]int, len(options))
	for _, opt := range options {
		counts[opt] = 0
	}
	return counts
}

// leaders returns the options sharing the highest count, in option order.
func leaders(options []string, counts map[string]int) []string {
	best := 0
	for _, opt := range options {
		best = max(best, counts[opt])
	}
	out := []string{}
	if best == 0 {
		return out
	}
	for _, opt := range options {
		if counts[opt] == best {
			out = append(out, opt)
		}
	}
	return out
}
