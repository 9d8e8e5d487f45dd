package service

import (
	"context"

	"agora/internal/deadline"
	"agora/internal/mandate/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/outbox"
	"agora/pkg/requestcontext"
)

// Create registers a mandate over a proposal, waiting for an assignee.
func (s *Service) Create(ctx context.Context, proposal id.ProposalRef) (*models.Mandate, error) {
	mandateID := id.NewMandateID()
	var created *models.Mandate
	err := s.tx.RunInTx(ctx, models.LockKey(mandateID), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		m, err := models.NewMandate(mandateID, proposal, now)
		if err != nil {
			return err
		}
		if err := s.mandates.Create(ctx, m); err != nil {
			return wrapStoreErr(err, "mandate")
		}
		if err := s.emit(ctx, m, outbox.EventMandateCreated, now, map[string]any{"proposal": string(m.Proposal)}); err != nil {
			return err
		}
		created = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, "mandate_created", created, "proposal", string(created.Proposal))
	return created, nil
}

// Assign hands a to_assign mandate to assignee and freezes its configuration.
// cfg overrides the service defaults when non-nil.
func (s *Service) Assign(ctx context.Context, mandateID id.MandateID, assignee id.UserRef, cfg *deadline.Config) (*models.Mandate, error) {
	if mandateID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "mandate ID required")
	}
	snapshot := s.defaults
	if cfg != nil {
		snapshot = *cfg
	}

	var assigned *models.Mandate
	err := s.tx.RunInTx(ctx, models.LockKey(mandateID), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		m, err := s.load(ctx, mandateID)
		if err != nil {
			return err
		}
		if err := m.CanAssign(assignee); err != nil {
			return err
		}
		m.ApplyAssignment(assignee, snapshot, now)
		if err := s.save(ctx, m); err != nil {
			return err
		}
		if err := s.emit(ctx, m, outbox.EventMandateAssigned, now, map[string]any{"assignee": string(assignee)}); err != nil {
			return err
		}
		assigned = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, "mandate_assigned", assigned, "assignee", string(assignee))
	return assigned, nil
}

// SubmitDeliverableCommand is the upload of one deliverable.
type SubmitDeliverableCommand struct {
	MandateID id.MandateID
	Uploader  id.UserRef
	Label     string
	Objective id.ObjectiveRef
}

// SubmitDeliverable records a pending deliverable with its evaluation
// deadline captured from the mandate snapshot. The first upload moves an
// assigned mandate to in_progress.
func (s *Service) SubmitDeliverable(ctx context.Context, cmd SubmitDeliverableCommand) (*models.Deliverable, error) {
	if cmd.MandateID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "mandate ID required")
	}

	var (
		submitted *models.Deliverable
		started   *models.Mandate
	)
	err := s.tx.RunInTx(ctx, models.LockKey(cmd.MandateID), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		m, err := s.load(ctx, cmd.MandateID)
		if err != nil {
			return err
		}
		if err := m.CanAcceptDeliverable(); err != nil {
			return err
		}
		cfg, err := m.Config()
		if err != nil {
			return err
		}
		d, err := models.NewDeliverable(id.NewDeliverableID(), m.ID, cmd.Uploader, cmd.Label, cmd.Objective, cfg, now)
		if err != nil {
			return err
		}

		if m.Status == models.MandateStatusAssigned {
			if err := m.CanTransitionTo(models.MandateStatusInProgress); err != nil {
				return err
			}
			m.ApplyTransition(models.MandateStatusInProgress, now)
			started = m
		}

		if err := s.deliverables.Create(ctx, d); err != nil {
			return wrapStoreErr(err, "deliverable")
		}
		if started != nil {
			if err := s.save(ctx, m); err != nil {
				return err
			}
			if err := s.emit(ctx, m, outbox.EventMandateStarted, now, nil); err != nil {
				return err
			}
		}
		event := outbox.NewEvent(outbox.AggregateDeliverable, d.ID.String(), outbox.EventDeliverableSubmitted, now, map[string]any{
			"mandate_id":          m.ID.String(),
			"uploader":            string(d.Uploader),
			"objective":           string(d.Objective),
			"evaluation_deadline": d.EvaluationDeadlineSnapshot,
		})
		if err := outbox.Emit(ctx, s.outbox, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record deliverable event")
		}
		submitted = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if started != nil {
		s.logTransition(ctx, "mandate_started", started)
	}
	s.logger.InfoContext(ctx, "deliverable submitted",
		"event", "deliverable_submitted",
		"mandate_id", submitted.MandateID.String(),
		"deliverable_id", submitted.ID.String(),
		"evaluation_deadline", submitted.EvaluationDeadlineSnapshot,
	)
	return submitted, nil
}
