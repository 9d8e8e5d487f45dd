package service

import (
	"context"
	"time"

	"agora/internal/deadline"
	"agora/internal/mandate/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/outbox"
)

// SweepResult reports what one sweep visit did to a mandate.
type SweepResult struct {
	Mandate *models.Mandate
	Expired bool
	Stamped bool
}

// SweepLapse expires a non-terminal mandate whose overall deadline is before
// now, and stamps the automation watermark in the same unit of work. Only the
// automation sweep calls this.
func (s *Service) SweepLapse(ctx context.Context, mandateID id.MandateID, now time.Time) (SweepResult, error) {
	if mandateID.IsNil() {
		return SweepResult{}, dErrors.New(dErrors.CodeValidation, "mandate ID required")
	}

	var result SweepResult
	err := s.tx.RunInTx(ctx, models.LockKey(mandateID), func(ctx context.Context) error {
		m, err := s.load(ctx, mandateID)
		if err != nil {
			return err
		}

		if m.Status.IsActive() {
			at, hasDeadline, err := m.Deadline()
			if err != nil {
				return err
			}
			if hasDeadline && deadline.Lapsed(now, at) {
				if err := m.CanTransitionTo(models.MandateStatusExpired); err != nil {
					return err
				}
				m.ApplyTransition(models.MandateStatusExpired, now)
				result.Expired = true
			}
		}
		result.Stamped = m.StampAutomationRun(now)

		if result.Expired || result.Stamped {
			if err := s.save(ctx, m); err != nil {
				return err
			}
		}
		if result.Expired {
			if err := s.emit(ctx, m, outbox.EventMandateExpired, now, map[string]any{"cause": "term_lapsed"}); err != nil {
				return err
			}
		}
		result.Mandate = m
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	if result.Expired {
		s.logTransition(ctx, "mandate_expired", result.Mandate, "cause", "term_lapsed")
	}
	return result, nil
}
