// Package deadline computes the lapse and flag deadlines a mandate is held to.
//
// Every function here is pure: inputs are a configuration snapshot taken when
// the mandate was assigned, plus timestamps. Nothing reads a live
// configuration, so changing engine defaults never moves a deadline that was
// already promised.
package deadline

import (
	"strings"
	"time"
)

// Config is the deadline and evaluation policy captured on a mandate.
type Config struct {
	// Term is the overall mandate duration from assignment. Zero means the
	// mandate never lapses on its own.
	Term time.Duration
	// EvaluationWindow is how long evaluators have after a deliverable upload.
	EvaluationWindow time.Duration
	// CureWindow is the minimum time that must remain before the mandate
	// deadline for a non-conforming deliverable to be resubmitted.
	CureWindow time.Duration
	// Quorum is the default number of distinct evaluators needed to resolve.
	Quorum int
	// ObjectiveQuorums overrides Quorum per objective reference.
	ObjectiveQuorums map[string]int
	// RequiredDeliverables is how many approved deliverables satisfy the mandate.
	RequiredDeliverables int
	// ExpireOnNonConformity lets a terminal non-conforming outcome expire the
	// mandate once no cure window remains.
	ExpireOnNonConformity bool
}

// Normalize clamps counts to their minimum meaningful values.
func (c Config) Normalize() Config {
	if c.Quorum < 1 {
		c.Quorum = 1
	}
	if c.RequiredDeliverables < 1 {
		c.RequiredDeliverables = 1
	}
	if c.Term < 0 {
		c.Term = 0
	}
	if c.EvaluationWindow < 0 {
		c.EvaluationWindow = 0
	}
	if c.CureWindow < 0 {
		c.CureWindow = 0
	}
	return c
}

// QuorumFor returns the evaluator quorum for an objective, falling back to
// the default when the objective has no override.
func (c Config) QuorumFor(objective string) int {
	if q, ok := c.ObjectiveQuorums[strings.TrimSpace(objective)]; ok && q > 0 {
		return q
	}
	if c.Quorum < 1 {
		return 1
	}
	return c.Quorum
}

// MandateDeadline is assignedAt plus the term. ok is false when the mandate
// has no term or was never assigned.
func MandateDeadline(assignedAt *time.Time, cfg Config) (at time.Time, ok bool) {
	if assignedAt == nil || cfg.Term <= 0 {
		return time.Time{}, false
	}
	return assignedAt.Add(cfg.Term), true
}

// EvaluationDeadline is the snapshot captured on a deliverable at upload.
func EvaluationDeadline(uploadedAt time.Time, cfg Config) time.Time {
	return uploadedAt.Add(cfg.EvaluationWindow)
}

// Lapsed reports whether now is strictly past deadline.
func Lapsed(now, deadline time.Time) bool {
	return now.After(deadline)
}

// CureRemains reports whether a resubmission could still be made and
// evaluated before the mandate deadline. Without a mandate deadline there is
// always time to cure.
func CureRemains(now time.Time, mandateDeadline time.Time, hasDeadline bool, cfg Config) bool {
	if !hasDeadline {
		return true
	}
	return !now.Add(cfg.CureWindow).After(mandateDeadline)
}
