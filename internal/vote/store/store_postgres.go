package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"agora/internal/platform/postgres"
	"agora/internal/vote/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
	txcontext "agora/pkg/platform/tx"
)

// PostgresStore persists votes and ballots. Ballot payloads are stored as
// JSONB in the shape of their vote type.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const voteColumns = `id, vote_type, subject, options, revoke_option, tie_policy, status, closes_at, result, created_at, closed_at`

func (s *PostgresStore) Create(ctx context.Context, v *models.Vote) error {
	result, err := marshalResult(v.Result)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO votes (` + voteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(v.ID),
		string(v.Type),
		v.Subject,
		pq.Array(v.Options),
		v.RevokeOption,
		string(v.TiePolicy),
		string(v.Status),
		v.ClosesAt,
		result,
		v.CreatedAt,
		v.ClosedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, voteID id.VoteID) (*models.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE id = $1`
	var (
		v         models.Vote
		rowID     uuid.UUID
		voteType  string
		tiePolicy string
		status    string
		options   []string
		closesAt  sql.NullTime
		closedAt  sql.NullTime
		result    []byte
	)
	err := txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(voteID)).Scan(
		&rowID, &voteType, &v.Subject, pq.Array(&options), &v.RevokeOption, &tiePolicy, &status,
		&closesAt, &result, &v.CreatedAt, &closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find vote by id: %w", err)
	}
	v.ID = id.VoteID(rowID)
	v.Type = models.Type(voteType)
	v.TiePolicy = models.TiePolicy(tiePolicy)
	v.Status = models.Status(status)
	v.Options = options
	if closesAt.Valid {
		at := closesAt.Time
		v.ClosesAt = &at
	}
	if closedAt.Valid {
		at := closedAt.Time
		v.ClosedAt = &at
	}
	if len(result) > 0 {
		var r models.TallyResult
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("decode vote result: %w", err)
		}
		v.Result = &r
	}
	return &v, nil
}

// Update persists status and result. Options are fixed at creation.
func (s *PostgresStore) Update(ctx context.Context, v *models.Vote) error {
	result, err := marshalResult(v.Result)
	if err != nil {
		return err
	}
	query := `UPDATE votes SET status = $2, result = $3, closed_at = $4 WHERE id = $1`
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query, uuid.UUID(v.ID), string(v.Status), result, v.ClosedAt)
	if err != nil {
		return fmt.Errorf("update vote: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update vote rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertBallot(ctx context.Context, b *models.Ballot) error {
	payload, err := json.Marshal(b.Payload)
	if err != nil {
		return fmt.Errorf("marshal ballot payload: %w", err)
	}
	query := `
		INSERT INTO ballots (vote_id, voter, payload, cast_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vote_id, voter) DO UPDATE SET
			payload = EXCLUDED.payload,
			cast_at = EXCLUDED.cast_at
	`
	_, err = txcontext.Use(ctx, s.db).ExecContext(ctx, query, uuid.UUID(b.VoteID), string(b.Voter), payload, b.CastAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("upsert ballot: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBallots(ctx context.Context, voteID id.VoteID) ([]*models.Ballot, error) {
	query := `
		SELECT b.voter, b.payload, b.cast_at, v.vote_type
		FROM ballots b
		JOIN votes v ON v.id = b.vote_id
		WHERE b.vote_id = $1
		ORDER BY b.voter
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, uuid.UUID(voteID))
	if err != nil {
		return nil, fmt.Errorf("list ballots: %w", err)
	}
	defer rows.Close()

	out := []*models.Ballot{}
	for rows.Next() {
		var (
			b        models.Ballot
			voter    string
			payload  []byte
			voteType string
		)
		if err := rows.Scan(&voter, &payload, &b.CastAt, &voteType); err != nil {
			return nil, fmt.Errorf("scan ballot: %w", err)
		}
		decoded, err := models.DecodePayload(models.Type(voteType), payload)
		if err != nil {
			return nil, fmt.Errorf("decode ballot payload: %w", err)
		}
		b.VoteID = voteID
		b.Voter = id.UserRef(voter)
		b.Payload = decoded
		out = append(out, &b)
	}
	return out, rows.Err()
}

// marshalResult returns nil for an open vote so the column stays NULL.
func marshalResult(r *models.TallyResult) (any, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal vote result: %w", err)
	}
	return raw, nil
}
