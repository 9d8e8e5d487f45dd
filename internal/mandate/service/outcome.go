package service

import (
	"context"
	"time"

	"agora/internal/deadline"
	"agora/internal/mandate/models"
	revmodels "agora/internal/revocation/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/outbox"
	"agora/pkg/requestcontext"
)

// RecordDeliverableOutcome applies a resolved deliverable to its mandate.
//
// The mandate completes once no other deliverable is pending and enough
// approvals were recorded. When the snapshot enables it, a failing outcome
// expires the mandate once nothing is pending and the cure window is gone.
// Replaying an outcome already applied returns the mandate unchanged.
//
// The caller may invoke this before persisting the deliverable's own terminal
// status; the deliverable named here is never counted as pending.
func (s *Service) RecordDeliverableOutcome(ctx context.Context, mandateID id.MandateID, deliverableID id.DeliverableID, outcome models.DeliverableStatus) (*models.Mandate, error) {
	if mandateID.IsNil() || deliverableID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "mandate and deliverable IDs required")
	}
	if !outcome.IsTerminal() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "outcome %s is not a resolved status", outcome)
	}

	var (
		result     *models.Mandate
		transition string
	)
	err := s.tx.RunInTx(ctx, models.LockKey(mandateID), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		m, err := s.load(ctx, mandateID)
		if err != nil {
			return err
		}
		if prior, applied := m.Metadata.Outcome(deliverableID); applied {
			if prior != outcome {
				s.logger.WarnContext(ctx, "conflicting deliverable outcome ignored",
					"event", "deliverable_outcome_conflict",
					"mandate_id", mandateID.String(),
					"deliverable_id", deliverableID.String(),
					"applied", string(prior),
					"received", string(outcome),
				)
			}
			result = m
			return nil
		}
		if !m.Status.IsActive() {
			return dErrors.Newf(dErrors.CodeInvalidTransition, "mandate is %s and cannot take deliverable outcomes", m.Status)
		}

		cfg, err := m.Config()
		if err != nil {
			return err
		}
		pending, err := s.hasOtherPending(ctx, mandateID, deliverableID)
		if err != nil {
			return err
		}

		m.Metadata.PutOutcome(deliverableID, outcome)
		m.UpdatedAt = now

		next, err := s.nextStatusAfterOutcome(m, cfg, outcome, pending, now)
		if err != nil {
			return err
		}
		if next != "" {
			if err := m.CanTransitionTo(next); err != nil {
				return err
			}
			m.ApplyTransition(next, now)
		}
		if err := s.save(ctx, m); err != nil {
			return err
		}

		switch next {
		case models.MandateStatusCompleted:
			transition = "mandate_completed"
			err = s.emit(ctx, m, outbox.EventMandateCompleted, now, map[string]any{"deliverable_id": deliverableID.String()})
		case models.MandateStatusExpired:
			transition = "mandate_expired"
			err = s.emit(ctx, m, outbox.EventMandateExpired, now, map[string]any{
				"deliverable_id": deliverableID.String(),
				"cause":          "non_conformity",
			})
		}
		if err != nil {
			return err
		}
		result = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if transition != "" {
		s.logTransition(ctx, transition, result, "deliverable_id", deliverableID.String())
	}
	return result, nil
}

func (s *Service) nextStatusAfterOutcome(m *models.Mandate, cfg deadline.Config, outcome models.DeliverableStatus, pending bool, now time.Time) (models.MandateStatus, error) {
	if pending {
		return "", nil
	}
	if m.Metadata.CountOutcomes(models.DeliverableStatusApproved) >= cfg.RequiredDeliverables {
		return models.MandateStatusCompleted, nil
	}
	if outcome == models.DeliverableStatusApproved || !cfg.ExpireOnNonConformity {
		return "", nil
	}
	at, hasDeadline, err := m.Deadline()
	if err != nil {
		return "", err
	}
	if deadline.CureRemains(now, at, hasDeadline, cfg) {
		return "", nil
	}
	return models.MandateStatusExpired, nil
}

func (s *Service) hasOtherPending(ctx context.Context, mandateID id.MandateID, except id.DeliverableID) (bool, error) {
	list, err := s.deliverables.ListByMandate(ctx, mandateID)
	if err != nil {
		return false, wrapStoreErr(err, "deliverables")
	}
	for _, d := range list {
		if d.ID != except && !d.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

// ApplyRevocationOutcome applies a closed revocation vote. req must still be
// vote_in_progress: the caller resolves the request only after this succeeds.
// An accepted outcome revokes the mandate; a rejected one leaves its status
// where it was, since the vote never moved it.
func (s *Service) ApplyRevocationOutcome(ctx context.Context, req *revmodels.Request, accepted bool) (*models.Mandate, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation request required")
	}
	if req.Status != revmodels.StatusVoteInProgress {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "revocation request is %s, outcome applies only while voting", req.Status)
	}

	var (
		result  *models.Mandate
		revoked bool
	)
	err := s.tx.RunInTx(ctx, models.LockKey(req.MandateID), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		m, err := s.load(ctx, req.MandateID)
		if err != nil {
			return err
		}
		if !accepted {
			result = m
			return nil
		}
		if err := m.CanTransitionTo(models.MandateStatusRevoked); err != nil {
			return err
		}
		m.ApplyTransition(models.MandateStatusRevoked, now)
		if err := s.save(ctx, m); err != nil {
			return err
		}
		if err := s.emit(ctx, m, outbox.EventMandateRevoked, now, map[string]any{"revocation_id": req.ID.String()}); err != nil {
			return err
		}
		result = m
		revoked = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if revoked {
		s.logTransition(ctx, "mandate_revoked", result, "revocation_id", req.ID.String())
	}
	return result, nil
}
