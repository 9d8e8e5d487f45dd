// Package service implements the mandate state machine.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agora/internal/deadline"
	"agora/internal/mandate/models"
	"agora/internal/platform/metrics"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/outbox"
	"agora/pkg/platform/sentinel"
	"agora/pkg/platform/tx"
)

type MandateStore interface {
	Create(ctx context.Context, m *models.Mandate) error
	FindByID(ctx context.Context, mandateID id.MandateID) (*models.Mandate, error)
	Update(ctx context.Context, m *models.Mandate) error
	ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Mandate, error)
}

type DeliverableStore interface {
	Create(ctx context.Context, d *models.Deliverable) error
	FindByID(ctx context.Context, deliverableID id.DeliverableID) (*models.Deliverable, error)
	Update(ctx context.Context, d *models.Deliverable) error
	ListByMandate(ctx context.Context, mandateID id.MandateID) ([]*models.Deliverable, error)
}

// Service owns mandate status. Every mutation runs inside a unit of work keyed
// by the mandate, so guards always observe the state they are about to change.
type Service struct {
	mandates     MandateStore
	deliverables DeliverableStore
	tx           tx.Runner
	defaults     deadline.Config
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

// WithDefaults sets the configuration snapshotted on assignment when the
// caller supplies none.
func WithDefaults(cfg deadline.Config) Option {
	return func(s *Service) {
		s.defaults = cfg
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

func New(mandates MandateStore, deliverables DeliverableStore, opts ...Option) *Service {
	s := &Service{
		mandates:     mandates,
		deliverables: deliverables,
		defaults:     deadline.Config{Quorum: 1, RequiredDeliverables: 1},
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

func (s *Service) Get(ctx context.Context, mandateID id.MandateID) (*models.Mandate, error) {
	if mandateID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "mandate ID required")
	}
	m, err := s.mandates.FindByID(ctx, mandateID)
	if err != nil {
		return nil, wrapStoreErr(err, "mandate")
	}
	return m, nil
}

func (s *Service) GetDeliverable(ctx context.Context, deliverableID id.DeliverableID) (*models.Deliverable, error) {
	if deliverableID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "deliverable ID required")
	}
	d, err := s.deliverables.FindByID(ctx, deliverableID)
	if err != nil {
		return nil, wrapStoreErr(err, "deliverable")
	}
	return d, nil
}

func (s *Service) ListDeliverables(ctx context.Context, mandateID id.MandateID) ([]*models.Deliverable, error) {
	if _, err := s.Get(ctx, mandateID); err != nil {
		return nil, err
	}
	list, err := s.deliverables.ListByMandate(ctx, mandateID)
	if err != nil {
		return nil, wrapStoreErr(err, "deliverables")
	}
	return list, nil
}

// ListSweepCandidates exposes the sweep's work queue.
func (s *Service) ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Mandate, error) {
	list, err := s.mandates.ListSweepCandidates(ctx, now, limit)
	if err != nil {
		return nil, wrapStoreErr(err, "sweep candidates")
	}
	return list, nil
}

// load reads the mandate inside the current unit of work.
func (s *Service) load(ctx context.Context, mandateID id.MandateID) (*models.Mandate, error) {
	m, err := s.mandates.FindByID(ctx, mandateID)
	if err != nil {
		return nil, wrapStoreErr(err, "mandate")
	}
	return m, nil
}

func (s *Service) save(ctx context.Context, m *models.Mandate) error {
	if err := s.mandates.Update(ctx, m); err != nil {
		return wrapStoreErr(err, "mandate")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, m *models.Mandate, eventType outbox.EventType, now time.Time, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = string(m.Status)
	event := outbox.NewEvent(outbox.AggregateMandate, m.ID.String(), eventType, now, payload)
	if err := outbox.Emit(ctx, s.outbox, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record mandate event")
	}
	return nil
}

func (s *Service) logTransition(ctx context.Context, event string, m *models.Mandate, attrs ...any) {
	s.metrics.IncTransition("mandate", string(m.Status))
	args := append([]any{"event", event, "mandate_id", m.ID.String(), "status", string(m.Status)}, attrs...)
	s.logger.InfoContext(ctx, "mandate transition", args...)
}

func wrapStoreErr(err error, entity string) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "%s not found", entity)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Newf(dErrors.CodeConflictingRequest, "%s already exists", entity)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+entity)
	}
}
