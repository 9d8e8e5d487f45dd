package models

import id "agora/pkg/domain"

// LockKey is the unit-of-work key for everything owned by a mandate: its own
// status, its deliverables and their evaluations, and its revocation requests.
func LockKey(mandateID id.MandateID) string {
	return "mandate:" + mandateID.String()
}
