package evaluation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agora/internal/mandate/models"
	"agora/internal/platform/metrics"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/outbox"
	"agora/pkg/platform/sentinel"
	"agora/pkg/platform/tx"
	"agora/pkg/requestcontext"
)

type Store interface {
	Upsert(ctx context.Context, e *models.Evaluation) error
	ListByDeliverable(ctx context.Context, deliverableID id.DeliverableID) ([]*models.Evaluation, error)
}

type DeliverableStore interface {
	FindByID(ctx context.Context, deliverableID id.DeliverableID) (*models.Deliverable, error)
	Update(ctx context.Context, d *models.Deliverable) error
}

// MandateStateMachine receives resolved deliverable outcomes.
type MandateStateMachine interface {
	Get(ctx context.Context, mandateID id.MandateID) (*models.Mandate, error)
	RecordDeliverableOutcome(ctx context.Context, mandateID id.MandateID, deliverableID id.DeliverableID, outcome models.DeliverableStatus) (*models.Mandate, error)
}

// Service records verdicts and resolves deliverables. It serializes on the
// owning mandate's key, so two evaluators completing quorum at the same time
// are linearized and exactly one of them resolves the deliverable.
type Service struct {
	evaluations  Store
	deliverables DeliverableStore
	mandates     MandateStateMachine
	tx           tx.Runner
	outbox       outbox.Appender
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Option func(*Service)

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithOutbox(appender outbox.Appender) Option {
	return func(s *Service) {
		s.outbox = appender
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(evaluations Store, deliverables DeliverableStore, mandates MandateStateMachine, opts ...Option) *Service {
	s := &Service{
		evaluations:  evaluations,
		deliverables: deliverables,
		mandates:     mandates,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewShardedRunner(0)
	}
	return s
}

// RecordCommand is one evaluator's verdict.
type RecordCommand struct {
	DeliverableID id.DeliverableID
	Evaluator     id.UserRef
	Verdict       models.Verdict
	Comment       string
}

// RecordResult is the deliverable state after a verdict was recorded.
type RecordResult struct {
	Evaluation  *models.Evaluation
	Deliverable *models.Deliverable
	// Mandate is set when the verdict resolved the deliverable.
	Mandate *models.Mandate
}

// RecordEvaluation inserts or replaces the evaluator's verdict and re-runs
// the aggregation rule. Reaching a terminal status hands the outcome to the
// mandate state machine inside the same unit of work.
func (s *Service) RecordEvaluation(ctx context.Context, cmd RecordCommand) (*RecordResult, error) {
	if cmd.DeliverableID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "deliverable ID required")
	}
	probe, err := s.deliverables.FindByID(ctx, cmd.DeliverableID)
	if err != nil {
		return nil, wrapStoreErr(err, "deliverable")
	}

	var (
		result   RecordResult
		resolved bool
	)
	err = s.tx.RunInTx(ctx, models.LockKey(probe.MandateID), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		evaluation, err := models.NewEvaluation(id.NewEvaluationID(), cmd.DeliverableID, cmd.Evaluator, cmd.Verdict, cmd.Comment, now)
		if err != nil {
			return err
		}

		d, err := s.deliverables.FindByID(ctx, cmd.DeliverableID)
		if err != nil {
			return wrapStoreErr(err, "deliverable")
		}
		if d.Status.IsTerminal() {
			return dErrors.Newf(dErrors.CodeAlreadyTerminal, "deliverable is %s", d.Status)
		}
		m, err := s.mandates.Get(ctx, d.MandateID)
		if err != nil {
			return err
		}
		if m.Status.IsTerminal() {
			return dErrors.Newf(dErrors.CodeAlreadyTerminal, "mandate is %s", m.Status)
		}
		cfg, err := m.Config()
		if err != nil {
			return err
		}

		current, err := s.evaluations.ListByDeliverable(ctx, d.ID)
		if err != nil {
			return wrapStoreErr(err, "evaluations")
		}
		next := Aggregate(currentVerdicts(current, evaluation), cfg.QuorumFor(string(d.Objective)))
		if err := d.CanMoveTo(next); err != nil {
			return err
		}

		if next.IsTerminal() {
			updated, err := s.mandates.RecordDeliverableOutcome(ctx, d.MandateID, d.ID, next)
			if err != nil {
				return err
			}
			result.Mandate = updated
			resolved = true
		}

		if err := s.evaluations.Upsert(ctx, evaluation); err != nil {
			return wrapStoreErr(err, "evaluation")
		}
		if next != d.Status {
			d.ApplyStatus(next, now)
			if err := s.deliverables.Update(ctx, d); err != nil {
				return wrapStoreErr(err, "deliverable")
			}
		}

		if err := s.emit(ctx, d, outbox.EventEvaluationRecorded, now, map[string]any{
			"evaluator": string(evaluation.Evaluator),
			"verdict":   string(evaluation.Verdict),
		}); err != nil {
			return err
		}
		if resolved {
			if err := s.emit(ctx, d, outbox.EventDeliverableResolved, now, nil); err != nil {
				return err
			}
		}
		result.Evaluation = evaluation
		result.Deliverable = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncEvaluation(string(cmd.Verdict))
	s.logger.InfoContext(ctx, "evaluation recorded",
		"event", "evaluation_recorded",
		"deliverable_id", result.Deliverable.ID.String(),
		"mandate_id", result.Deliverable.MandateID.String(),
		"evaluator", string(cmd.Evaluator),
		"verdict", string(cmd.Verdict),
		"status", string(result.Deliverable.Status),
	)
	if resolved {
		s.metrics.IncTransition("deliverable", string(result.Deliverable.Status))
		s.logger.InfoContext(ctx, "deliverable resolved",
			"event", "deliverable_resolved",
			"deliverable_id", result.Deliverable.ID.String(),
			"mandate_id", result.Deliverable.MandateID.String(),
			"status", string(result.Deliverable.Status),
			"mandate_status", string(result.Mandate.Status),
		)
	}
	return &result, nil
}

// FlagResult reports the effect of one lapse check.
type FlagResult struct {
	Deliverable *models.Deliverable
	Flagged     bool
	// Mandate is set when the flag was handed to the state machine.
	Mandate *models.Mandate
}

// FlagLapsed marks a pending or under-review deliverable non-conforming once
// now is past its evaluation deadline snapshot. Terminal or not-yet-lapsed
// deliverables are left alone. Only the automation sweep calls this.
func (s *Service) FlagLapsed(ctx context.Context, deliverableID id.DeliverableID, now time.Time) (*FlagResult, error) {
	if deliverableID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "deliverable ID required")
	}
	probe, err := s.deliverables.FindByID(ctx, deliverableID)
	if err != nil {
		return nil, wrapStoreErr(err, "deliverable")
	}

	var result FlagResult
	err = s.tx.RunInTx(ctx, models.LockKey(probe.MandateID), func(ctx context.Context) error {
		d, err := s.deliverables.FindByID(ctx, deliverableID)
		if err != nil {
			return wrapStoreErr(err, "deliverable")
		}
		result.Deliverable = d
		if !d.IsLapsed(now) {
			return nil
		}

		m, err := s.mandates.Get(ctx, d.MandateID)
		if err != nil {
			return err
		}
		if m.Status.IsActive() {
			updated, err := s.mandates.RecordDeliverableOutcome(ctx, d.MandateID, d.ID, models.DeliverableStatusNonConforming)
			if err != nil {
				return err
			}
			result.Mandate = updated
		}

		d.ApplyNonConformityFlag(now)
		if err := s.deliverables.Update(ctx, d); err != nil {
			return wrapStoreErr(err, "deliverable")
		}
		if err := s.emit(ctx, d, outbox.EventDeliverableFlagged, now, map[string]any{
			"evaluation_deadline": d.EvaluationDeadlineSnapshot,
		}); err != nil {
			return err
		}
		result.Flagged = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Flagged {
		s.metrics.IncTransition("deliverable", string(models.DeliverableStatusNonConforming))
		s.logger.InfoContext(ctx, "deliverable flagged non-conforming",
			"event", "deliverable_flagged",
			"deliverable_id", deliverableID.String(),
			"mandate_id", result.Deliverable.MandateID.String(),
			"evaluation_deadline", result.Deliverable.EvaluationDeadlineSnapshot,
		)
	}
	return &result, nil
}

// ListCurrent returns the current verdict of every evaluator on a deliverable.
func (s *Service) ListCurrent(ctx context.Context, deliverableID id.DeliverableID) ([]*models.Evaluation, error) {
	if deliverableID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "deliverable ID required")
	}
	if _, err := s.deliverables.FindByID(ctx, deliverableID); err != nil {
		return nil, wrapStoreErr(err, "deliverable")
	}
	list, err := s.evaluations.ListByDeliverable(ctx, deliverableID)
	if err != nil {
		return nil, wrapStoreErr(err, "evaluations")
	}
	return list, nil
}

// currentVerdicts is the verdict set once incoming replaces the evaluator's
// earlier verdict, if any.
func currentVerdicts(current []*models.Evaluation, incoming *models.Evaluation) []models.Verdict {
	verdicts := make([]models.Verdict, 0, len(current)+1)
	for _, e := range current {
		if e.Evaluator == incoming.Evaluator {
			continue
		}
		verdicts = append(verdicts, e.Verdict)
	}
	return append(verdicts, incoming.Verdict)
}

func (s *Service) emit(ctx context.Context, d *models.Deliverable, eventType outbox.EventType, now time.Time, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["mandate_id"] = d.MandateID.String()
	payload["status"] = string(d.Status)
	event := outbox.NewEvent(outbox.AggregateDeliverable, d.ID.String(), eventType, now, payload)
	if err := outbox.Emit(ctx, s.outbox, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record deliverable event")
	}
	return nil
}

func wrapStoreErr(err error, entity string) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "%s not found", entity)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+entity)
	}
}
