// Package service coordinates revocation requests with the vote that decides
// them and hands accepted outcomes to the mandate state machine.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	mandatemodels "agora/internal/mandate/models"
	"agora/internal/platform/metrics"
	"agora/internal/revocation/models"
	votemodels "agora/internal/vote/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/outbox"
	"agora/pkg/platform/sentinel"
	"agora/pkg/platform/tx"
	"agora/pkg/requestcontext"
)

var tracer = otel.Tracer("agora/revocation")

type Store interface {
	Create(ctx context.Context, r *models.Request) error
	FindByID(ctx context.Context, requestID id.RevocationID) (*models.Request, error)
	FindActiveByMandate(ctx context.Context, mandateID id.MandateID) (*models.Request, error)
	FindByVote(ctx context.Context, voteID id.VoteID) (*models.Request, error)
	Update(ctx context.Context, r *models.Request) error
	ListByMandate(ctx context.Context, mandateID id.MandateID) ([]*models.Request, error)
}

type MandateStateMachine interface {
	Get(ctx context.Context, mandateID id.MandateID) (*mandatemodels.Mandate, error)
	ApplyRevocationOutcome(ctx context.Context, req *models.Request, accepted bool) (*mandatemodels.Mandate, error)
}

type Votes interface {
	Get(ctx context.Context, voteID id.VoteID) (*votemodels.Vote, error)
	Close(ctx context.Context, voteID id.VoteID) (*votemodels.Vote, error)
}

type Service struct {
	requests Store
	mandates MandateStateMachine
	votes    Votes
	tx       tx.Runner
	outbox   outbox.Appender
	metrics  *metrics.Metrics
	logger   *slog.Logger
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

func New(requests Store, mandates MandateStateMachine, votes Votes, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		mandates: mandates,
		votes:    votes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewShardedRunner(0)
	}
	return s
}

// Open creates a request in open status on an assigned or in-progress
// mandate. A mandate holds at most one open or voting request; a second one
// fails with CodeConflictingRequest.
func (s *Service) Open(ctx context.Context, mandateID id.MandateID, initiator id.UserRef, reason string) (*models.Request, error) {
	if mandateID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "mandate ID required")
	}
	var opened *models.Request
	err := s.tx.RunInTx(ctx, mandatemodels.LockKey(mandateID), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		m, err := s.mandates.Get(ctx, mandateID)
		if err != nil {
			return err
		}
		if m.Status.IsTerminal() {
			return dErrors.Newf(dErrors.CodeAlreadyTerminal, "mandate is %s", m.Status)
		}
		if !m.Status.IsActive() {
			return dErrors.Newf(dErrors.CodeInvalidTransition, "mandate is %s and cannot be revoked", m.Status)
		}
		existing, err := s.requests.FindActiveByMandate(ctx, mandateID)
		switch {
		case err == nil:
			return dErrors.Newf(dErrors.CodeConflictingRequest, "revocation request %s is already %s", existing.ID, existing.Status)
		case !errors.Is(err, sentinel.ErrNotFound):
			return wrapStoreErr(err)
		}

		r, err := models.NewRequest(id.NewRevocationID(), mandateID, initiator, reason, now)
		if err != nil {
			return err
		}
		if err := s.requests.Create(ctx, r); err != nil {
			return wrapStoreErr(err)
		}
		if err := s.emit(ctx, r, outbox.EventRevocationOpened, now, map[string]any{
			"initiator": string(r.Initiator),
			"reason":    r.Reason,
		}); err != nil {
			return err
		}
		opened = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, "revocation_opened", opened, "initiator", string(opened.Initiator))
	return opened, nil
}

// AttachVote links an open vote and moves the request to vote_in_progress.
// A vote decides one request only; a vote already linked elsewhere fails with
// CodeConflictingRequest.
func (s *Service) AttachVote(ctx context.Context, requestID id.RevocationID, voteID id.VoteID) (*models.Request, error) {
	if voteID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "vote ID required")
	}
	var attached *models.Request
	err := s.inUnit(ctx, requestID, func(ctx context.Context, r *models.Request) error {
		now := requestcontext.Now(ctx)
		if err := r.CanAttachVote(); err != nil {
			return err
		}
		v, err := s.votes.Get(ctx, voteID)
		if err != nil {
			return err
		}
		if v.IsClosed() {
			return dErrors.New(dErrors.CodeAlreadyTerminal, "vote is already closed")
		}
		linked, err := s.requests.FindByVote(ctx, voteID)
		switch {
		case err == nil && linked.ID != r.ID:
			return dErrors.Newf(dErrors.CodeConflictingRequest, "vote already decides revocation request %s", linked.ID)
		case err != nil && !errors.Is(err, sentinel.ErrNotFound):
			return wrapStoreErr(err)
		}
		r.ApplyVote(voteID)
		if err := s.requests.Update(ctx, r); err != nil {
			return wrapStoreErr(err)
		}
		if err := s.emit(ctx, r, outbox.EventRevocationVoting, now, map[string]any{"vote_id": voteID.String()}); err != nil {
			return err
		}
		attached = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, "revocation_voting", attached, "vote_id", voteID.String())
	return attached, nil
}

// ResolveResult is the request and mandate after a vote outcome was applied.
type ResolveResult struct {
	Request *models.Request
	Mandate *mandatemodels.Mandate
}

// Resolve applies a closed vote's outcome exactly once: the mandate state
// machine first, then the request. A resolved request fails with
// CodeAlreadyResolved and nothing changes. When the mandate reached a terminal
// status while the vote ran, the outcome is moot and the request is withdrawn.
func (s *Service) Resolve(ctx context.Context, requestID id.RevocationID, result votemodels.TallyResult) (*ResolveResult, error) {
	ctx, span := tracer.Start(ctx, "revocation.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("revocation.id", requestID.String()),
		attribute.Bool("revocation.accepted", result.Accepted),
	)

	var out ResolveResult
	err := s.inUnit(ctx, requestID, func(ctx context.Context, r *models.Request) error {
		now := requestcontext.Now(ctx)
		if err := r.CanResolve(); err != nil {
			return err
		}
		current, err := s.mandates.Get(ctx, r.MandateID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			r.ApplyWithdrawal(now)
			if err := s.requests.Update(ctx, r); err != nil {
				return wrapStoreErr(err)
			}
			if err := s.emit(ctx, r, outbox.EventRevocationWithdrawn, now, map[string]any{
				"cause":          "mandate_terminal",
				"mandate_status": string(current.Status),
			}); err != nil {
				return err
			}
			out = ResolveResult{Request: r, Mandate: current}
			return nil
		}
		m, err := s.mandates.ApplyRevocationOutcome(ctx, r, result.Accepted)
		if err != nil {
			return err
		}
		r.ApplyResolution(result.Accepted, now)
		if err := s.requests.Update(ctx, r); err != nil {
			return wrapStoreErr(err)
		}
		if err := s.emit(ctx, r, outbox.EventRevocationResolved, now, map[string]any{
			"accepted":        result.Accepted,
			"winning_options": result.WinningOptions,
			"mandate_status":  string(m.Status),
		}); err != nil {
			return err
		}
		out = ResolveResult{Request: r, Mandate: m}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	if out.Request.Status == models.StatusWithdrawn {
		s.logTransition(ctx, "revocation_withdrawn", out.Request,
			"cause", "mandate_terminal",
			"mandate_status", string(out.Mandate.Status),
		)
		return &out, nil
	}
	s.logTransition(ctx, "revocation_resolved", out.Request,
		"accepted", result.Accepted,
		"mandate_status", string(out.Mandate.Status),
	)
	return &out, nil
}

// CloseVote is the vote-closure trigger: it closes the linked vote, then
// resolves the request with its tally. The vote is closed under its own key
// before the mandate key is taken; Close is idempotent, so a retry after a
// failed resolve reuses the first tally.
func (s *Service) CloseVote(ctx context.Context, requestID id.RevocationID) (*ResolveResult, error) {
	ctx, span := tracer.Start(ctx, "revocation.CloseVote")
	defer span.End()
	span.SetAttributes(attribute.String("revocation.id", requestID.String()))

	r, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.CanResolve(); err != nil {
		return nil, err
	}
	if r.VoteID == nil {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "revocation request has no vote")
	}
	v, err := s.votes.Close(ctx, *r.VoteID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.String("vote.id", v.ID.String()))
	return s.Resolve(ctx, requestID, *v.Result)
}

// Withdraw ends an open or voting request without an outcome. A linked vote
// is left as it is.
func (s *Service) Withdraw(ctx context.Context, requestID id.RevocationID) (*models.Request, error) {
	var withdrawn *models.Request
	err := s.inUnit(ctx, requestID, func(ctx context.Context, r *models.Request) error {
		now := requestcontext.Now(ctx)
		if err := r.CanWithdraw(); err != nil {
			return err
		}
		r.ApplyWithdrawal(now)
		if err := s.requests.Update(ctx, r); err != nil {
			return wrapStoreErr(err)
		}
		if err := s.emit(ctx, r, outbox.EventRevocationWithdrawn, now, nil); err != nil {
			return err
		}
		withdrawn = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, "revocation_withdrawn", withdrawn)
	return withdrawn, nil
}

func (s *Service) Get(ctx context.Context, requestID id.RevocationID) (*models.Request, error) {
	if requestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation request ID required")
	}
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return r, nil
}

func (s *Service) ListByMandate(ctx context.Context, mandateID id.MandateID) ([]*models.Request, error) {
	if mandateID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "mandate ID required")
	}
	list, err := s.requests.ListByMandate(ctx, mandateID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return list, nil
}

// inUnit reloads the request inside the unit of work of its mandate.
func (s *Service) inUnit(ctx context.Context, requestID id.RevocationID, fn func(ctx context.Context, r *models.Request) error) error {
	probe, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, mandatemodels.LockKey(probe.MandateID), func(ctx context.Context) error {
		r, err := s.requests.FindByID(ctx, requestID)
		if err != nil {
			return wrapStoreErr(err)
		}
		return fn(ctx, r)
	})
}

func (s *Service) emit(ctx context.Context, r *models.Request, eventType outbox.EventType, now time.Time, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["mandate_id"] = r.MandateID.String()
	payload["status"] = string(r.Status)
	event := outbox.NewEvent(outbox.AggregateRevocation, r.ID.String(), eventType, now, payload)
	if err := outbox.Emit(ctx, s.outbox, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record revocation event")
	}
	return nil
}

func (s *Service) logTransition(ctx context.Context, event string, r *models.Request, attrs ...any) {
	s.metrics.IncTransition("revocation", string(r.Status))
	args := append([]any{
		"event", event,
		"revocation_id", r.ID.String(),
		"mandate_id", r.MandateID.String(),
		"status", string(r.Status),
	}, attrs...)
	s.logger.InfoContext(ctx, "revocation transition", args...)
}

func wrapStoreErr(err error) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "revocation request not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflictingRequest, "revocation request conflicts with an active request or its vote")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access revocation requests")
	}
}
