package tally

import (
	"slices"

	"agora/internal/vote/models"
	dErrors "agora/pkg/domain-errors"
)

// majorityJudgment ranks options by their lower median grade. Tied leaders
// each drop one instance of the shared median and are compared again until
// one leads alone. Leaders still tied once their grades run out give no
// result.
func majorityJudgment(rules Rules, ballots []*models.Ballot) (models.TallyResult, error) {
	grades := make(map[string][]models.Grade, len(rules.Options))
	for _, opt := range rules.Options {
		grades[opt] = make([]models.Grade, 0, len(ballots))
	}
	for _, b := range ballots {
		ratings, ok := b.Payload.(models.Ratings)
		if !ok {
			return models.TallyResult{}, dErrors.Newf(dErrors.CodeInvalidBallotSet, "%s ballot in a majority-judgment vote", b.Payload.VoteType())
		}
		if len(ratings.Ratings) != len(rules.Options) {
			return models.TallyResult{}, dErrors.Newf(dErrors.CodeInvalidBallotSet, "ballot from %q does not rate every option", b.Voter)
		}
		for opt, g := range ratings.Ratings {
			if _, known := grades[opt]; !known {
				return models.TallyResult{}, dErrors.Newf(dErrors.CodeInvalidBallotSet, "ballot rated unknown option %q", opt)
			}
			if !g.IsValid() {
				return models.TallyResult{}, dErrors.Newf(dErrors.CodeInvalidBallotSet, "ballot from %q has an invalid grade", b.Voter)
			}
			grades[opt] = append(grades[opt], g)
		}
	}
	for _, opt := range rules.Options {
		slices.Sort(grades[opt])
	}

	result := models.TallyResult{WinningOptions: []string{}, Ballots: len(ballots)}
	contenders := slices.Clone(rules.Options)
	for {
		if len(grades[contenders[0]]) == 0 {
			// every contender holds the same number of grades
			result.NoResult = true
			return result, nil
		}
		best := models.GradeReject
		for _, opt := range contenders {
			best = max(best, lowerMedian(grades[opt]))
		}
		next := contenders[:0:0]
		for _, opt := range contenders {
			if lowerMedian(grades[opt]) == best {
				next = append(next, opt)
			}
		}
		if len(next) == 1 {
			result.WinningOptions = next
			result.Accepted = next[0] == rules.RevokeOption
			return result, nil
		}
		for _, opt := range next {
			grades[opt] = removeOne(grades[opt], best)
		}
		contenders = next
	}
}

// lowerMedian of an ascending, non-empty slice.
func lowerMedian(sorted []models.Grade) models.Grade {
	return sorted[(len(sorted)-1)/2]
}

func removeOne(sorted []models.Grade, g models.Grade) []models.Grade {
	i, found := slices.BinarySearch(sorted, g)
	if !found {
		return sorted
	}
	return slices.Delete(slices.Clone(sorted), i, i+1)
}
