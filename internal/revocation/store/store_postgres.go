package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"agora/internal/platform/postgres"
	"agora/internal/revocation/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
	txcontext "agora/pkg/platform/tx"
)

// PostgresStore persists revocation requests. The one-active-per-mandate
// rule is the idx_revocation_one_active partial unique index and the
// one-request-per-vote rule is idx_revocation_vote; violations surface as
// sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, mandate_id, initiator, reason, status, vote_id, created_at, resolved_at`

func (s *PostgresStore) Create(ctx context.Context, r *models.Request) error {
	query := `
		INSERT INTO revocation_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(r.ID),
		uuid.UUID(r.MandateID),
		string(r.Initiator),
		r.Reason,
		string(r.Status),
		voteArg(r.VoteID),
		r.CreatedAt,
		r.ResolvedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert revocation request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RevocationID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM revocation_requests WHERE id = $1`
	r, err := scanRequest(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find revocation request by id: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) FindActiveByMandate(ctx context.Context, mandateID id.MandateID) (*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM revocation_requests
		WHERE mandate_id = $1 AND status IN ('open', 'vote_in_progress')
	`
	r, err := scanRequest(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(mandateID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active revocation request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) FindByVote(ctx context.Context, voteID id.VoteID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM revocation_requests WHERE vote_id = $1`
	r, err := scanRequest(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(voteID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find revocation request by vote: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.Request) error {
	query := `
		UPDATE revocation_requests SET
			status = $2,
			vote_id = $3,
			resolved_at = $4
		WHERE id = $1
	`
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(r.ID),
		string(r.Status),
		voteArg(r.VoteID),
		r.ResolvedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update revocation request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update revocation request rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByMandate(ctx context.Context, mandateID id.MandateID) ([]*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM revocation_requests
		WHERE mandate_id = $1
		ORDER BY created_at, id
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, uuid.UUID(mandateID))
	if err != nil {
		return nil, fmt.Errorf("list revocation requests: %w", err)
	}
	defer rows.Close()

	out := []*models.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revocation request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func voteArg(voteID *id.VoteID) any {
	if voteID == nil {
		return nil
	}
	return uuid.UUID(*voteID)
}

type requestRow interface {
	Scan(dest ...any) error
}

func scanRequest(row requestRow) (*models.Request, error) {
	var (
		r          models.Request
		requestID  uuid.UUID
		mandateID  uuid.UUID
		initiator  string
		status     string
		voteID     uuid.NullUUID
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&requestID, &mandateID, &initiator, &r.Reason, &status, &voteID, &r.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	r.ID = id.RevocationID(requestID)
	r.MandateID = id.MandateID(mandateID)
	r.Initiator = id.UserRef(initiator)
	r.Status = models.Status(status)
	if voteID.Valid {
		v := id.VoteID(voteID.UUID)
		r.VoteID = &v
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		r.ResolvedAt = &at
	}
	return &r, nil
}
