// Package service runs votes: creation, ballot casting and closing.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agora/internal/platform/metrics"
	"agora/internal/vote/models"
	"agora/internal/vote/tally"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/outbox"
	"agora/pkg/platform/sentinel"
	"agora/pkg/platform/tx"
	"agora/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, v *models.Vote) error
	FindByID(ctx context.Context, voteID id.VoteID) (*models.Vote, error)
	Update(ctx context.Context, v *models.Vote) error
	UpsertBallot(ctx context.Context, b *models.Ballot) error
	ListBallots(ctx context.Context, voteID id.VoteID) ([]*models.Ballot, error)
}

type Service struct {
	store     Store
	tx        tx.Runner
	tiePolicy models.TiePolicy
	outbox    outbox.Appender
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Service)

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

// WithTiePolicy sets the policy for votes created without one.
func WithTiePolicy(policy models.TiePolicy) Option {
	return func(s *Service) {
		s.tiePolicy = policy
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

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		tiePolicy: models.TieRejects,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewShardedRunner(0)
	}
	return s
}

type CreateVoteCommand struct {
	Type         models.Type
	Subject      string
	Options      []string
	RevokeOption string
	TiePolicy    models.TiePolicy
	ClosesAt     *time.Time
}

func (s *Service) CreateVote(ctx context.Context, cmd CreateVoteCommand) (*models.Vote, error) {
	policy := cmd.TiePolicy
	if policy == "" {
		policy = s.tiePolicy
	}
	voteID := id.NewVoteID()
	var created *models.Vote
	err := s.tx.RunInTx(ctx, models.LockKey(voteID), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		v, err := models.NewVote(voteID, cmd.Type, cmd.Subject, cmd.Options, cmd.RevokeOption, policy, cmd.ClosesAt, now)
		if err != nil {
			return err
		}
		if err := s.store.Create(ctx, v); err != nil {
			return wrapStoreErr(err, "vote")
		}
		if err := s.emit(ctx, v, outbox.EventVoteCreated, now, map[string]any{
			"type":    string(v.Type),
			"options": v.Options,
		}); err != nil {
			return err
		}
		created = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "vote created",
		"event", "vote_created",
		"vote_id", created.ID.String(),
		"vote_type", string(created.Type),
		"subject", created.Subject,
	)
	return created, nil
}

// CastBallot records or replaces the voter's ballot. Closed votes refuse
// ballots with CodeAlreadyTerminal.
func (s *Service) CastBallot(ctx context.Context, voteID id.VoteID, voter id.UserRef, payload models.Payload) (*models.Ballot, error) {
	if voteID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "vote ID required")
	}
	var (
		cast     *models.Ballot
		voteType models.Type
	)
	err := s.tx.RunInTx(ctx, models.LockKey(voteID), func(ctx context.Context) error {
		v, err := s.load(ctx, voteID)
		if err != nil {
			return err
		}
		b, err := models.NewBallot(v, voter, payload, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.store.UpsertBallot(ctx, b); err != nil {
			return wrapStoreErr(err, "ballot")
		}
		cast = b
		voteType = v.Type
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncBallot(string(voteType))
	s.logger.InfoContext(ctx, "ballot cast",
		"event", "ballot_cast",
		"vote_id", voteID.String(),
		"voter", string(voter),
	)
	return cast, nil
}

// Close tallies current ballots and freezes the vote. Closing a closed vote
// returns it unchanged, with the tally computed the first time.
func (s *Service) Close(ctx context.Context, voteID id.VoteID) (*models.Vote, error) {
	if voteID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "vote ID required")
	}
	var (
		closed  *models.Vote
		changed bool
	)
	err := s.tx.RunInTx(ctx, models.LockKey(voteID), func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		v, err := s.load(ctx, voteID)
		if err != nil {
			return err
		}
		if v.IsClosed() {
			closed = v
			return nil
		}
		ballots, err := s.store.ListBallots(ctx, voteID)
		if err != nil {
			return wrapStoreErr(err, "ballots")
		}
		result, err := tally.Tally(tally.RulesOf(v), ballots)
		if err != nil {
			return err
		}
		v.ApplyClose(result, now)
		if err := s.store.Update(ctx, v); err != nil {
			return wrapStoreErr(err, "vote")
		}
		if err := s.emit(ctx, v, outbox.EventVoteClosed, now, map[string]any{
			"winning_options": result.WinningOptions,
			"accepted":        result.Accepted,
			"no_result":       result.NoResult,
			"ballots":         result.Ballots,
		}); err != nil {
			return err
		}
		closed = v
		changed = true
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidBallotSet) {
			s.logger.ErrorContext(ctx, "vote tally failed",
				"event", "vote_tally_failed",
				"vote_id", voteID.String(),
				"error", err,
			)
		}
		return nil, err
	}
	if changed {
		s.metrics.IncTally(string(closed.Type), outcomeLabel(*closed.Result))
		s.logger.InfoContext(ctx, "vote closed",
			"event", "vote_closed",
			"vote_id", closed.ID.String(),
			"accepted", closed.Result.Accepted,
			"ballots", closed.Result.Ballots,
		)
	}
	return closed, nil
}

func (s *Service) Get(ctx context.Context, voteID id.VoteID) (*models.Vote, error) {
	if voteID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "vote ID required")
	}
	return s.load(ctx, voteID)
}

func (s *Service) ListBallots(ctx context.Context, voteID id.VoteID) ([]*models.Ballot, error) {
	if _, err := s.Get(ctx, voteID); err != nil {
		return nil, err
	}
	ballots, err := s.store.ListBallots(ctx, voteID)
	if err != nil {
		return nil, wrapStoreErr(err, "ballots")
	}
	return ballots, nil
}

func (s *Service) load(ctx context.Context, voteID id.VoteID) (*models.Vote, error) {
	v, err := s.store.FindByID(ctx, voteID)
	if err != nil {
		return nil, wrapStoreErr(err, "vote")
	}
	return v, nil
}

func (s *Service) emit(ctx context.Context, v *models.Vote, eventType outbox.EventType, now time.Time, payload map[string]any) error {
	payload["subject"] = v.Subject
	event := outbox.NewEvent(outbox.AggregateVote, v.ID.String(), eventType, now, payload)
	if err := outbox.Emit(ctx, s.outbox, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vote event")
	}
	return nil
}

func outcomeLabel(r models.TallyResult) string {
	switch {
	case r.NoResult:
		return "no_result"
	case r.Accepted:
		return "accepted"
	default:
		return "rejected"
	}
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
