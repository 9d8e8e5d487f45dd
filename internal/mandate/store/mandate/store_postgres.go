package mandate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"agora/internal/mandate/models"
	"agora/internal/platform/postgres"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
	txcontext "agora/pkg/platform/tx"
)

// PostgresStore persists mandates in PostgreSQL. It joins the unit of work
// carried by ctx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const mandateColumns = `id, proposal, assignee, status, metadata, assigned_at, last_automation_run_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, m *models.Mandate) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal mandate metadata: %w", err)
	}
	query := `
		INSERT INTO mandates (` + mandateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(m.ID),
		string(m.Proposal),
		string(m.Assignee),
		string(m.Status),
		metadata,
		m.AssignedAt,
		m.LastAutomationRunAt,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert mandate: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, mandateID id.MandateID) (*models.Mandate, error) {
	query := `SELECT ` + mandateColumns + ` FROM mandates WHERE id = $1`
	m, err := scanMandate(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(mandateID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find mandate by id: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) Update(ctx context.Context, m *models.Mandate) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal mandate metadata: %w", err)
	}
	query := `
		UPDATE mandates SET
			assignee = $2,
			status = $3,
			metadata = $4,
			assigned_at = $5,
			last_automation_run_at = $6,
			updated_at = $7
		WHERE id = $1
	`
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(m.ID),
		string(m.Assignee),
		string(m.Status),
		metadata,
		m.AssignedAt,
		m.LastAutomationRunAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update mandate: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mandate rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Mandate, error) {
	query := `
		SELECT ` + mandateColumns + `
		FROM mandates
		WHERE status = ANY($1)
		  AND (last_automation_run_at IS NULL OR last_automation_run_at < $2)
		ORDER BY last_automation_run_at NULLS FIRST, id
		LIMIT $3
	`
	active := []string{string(models.MandateStatusAssigned), string(models.MandateStatusInProgress)}
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, pq.Array(active), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list sweep candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.Mandate
	for rows.Next() {
		m, err := scanMandate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sweep candidate: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type mandateRow interface {
	Scan(dest ...any) error
}

func scanMandate(row mandateRow) (*models.Mandate, error) {
	var (
		m          models.Mandate
		mandateID  uuid.UUID
		proposal   string
		assignee   string
		status     string
		metadata   []byte
		assignedAt sql.NullTime
		lastRunAt  sql.NullTime
	)
	if err := row.Scan(&mandateID, &proposal, &assignee, &status, &metadata, &assignedAt, &lastRunAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.ID = id.MandateID(mandateID)
	m.Proposal = id.ProposalRef(proposal)
	m.Assignee = id.UserRef(assignee)
	m.Status = models.MandateStatus(status)
	m.Metadata = models.Metadata{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode mandate metadata: %w", err)
		}
	}
	if assignedAt.Valid {
		at := assignedAt.Time
		m.AssignedAt = &at
	}
	if lastRunAt.Valid {
		at := lastRunAt.Time
		m.LastAutomationRunAt = &at
	}
	return &m, nil
}
