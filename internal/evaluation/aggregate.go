// Package evaluation resolves deliverables from evaluator verdicts and flags
// deliverables whose evaluation deadline lapsed.
package evaluation

import "agora/internal/mandate/models"

// Aggregate applies the consensus rule to the current verdict of each
// distinct evaluator. Below quorum the deliverable stays under review; at
// quorum any reject rejects, unanimous approval approves, and anything else
// keeps it under review.
func Aggregate(verdicts []models.Verdict, quorum int) models.DeliverableStatus {
	if len(verdicts) == 0 {
		return models.DeliverableStatusPending
	}
	if quorum < 1 {
		quorum = 1
	}
	if len(verdicts) < quorum {
		return models.DeliverableStatusUnderReview
	}
	approvals := 0
	for _, v := range verdicts {
		switch v {
		case models.VerdictReject:
			return models.DeliverableStatusRejected
		case models.VerdictApprove:
			approvals++
		}
	}
	if approvals == len(verdicts) {
		return models.DeliverableStatusApproved
	}
	return models.DeliverableStatusUnderReview
}
