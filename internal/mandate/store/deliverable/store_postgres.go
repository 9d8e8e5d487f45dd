package deliverable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"agora/internal/mandate/models"
	"agora/internal/platform/postgres"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
	txcontext "agora/pkg/platform/tx"
)

// PostgresStore persists deliverables in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const deliverableColumns = `id, mandate_id, uploader, label, objective, status, uploaded_at,
	evaluation_deadline, non_conformity_flagged_at, resolved_at, metadata, updated_at`

func (s *PostgresStore) Create(ctx context.Context, d *models.Deliverable) error {
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal deliverable metadata: %w", err)
	}
	query := `
		INSERT INTO deliverables (` + deliverableColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		uuid.UUID(d.MandateID),
		string(d.Uploader),
		d.Label,
		string(d.Objective),
		string(d.Status),
		d.UploadedAt,
		d.EvaluationDeadlineSnapshot,
		d.NonConformityFlaggedAt,
		d.ResolvedAt,
		metadata,
		d.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert deliverable: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, deliverableID id.DeliverableID) (*models.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE id = $1`
	d, err := scanDeliverable(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(deliverableID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find deliverable by id: %w", err)
	}
	return d, nil
}

// Update writes the mutable columns. The evaluation deadline snapshot is
// never rewritten.
func (s *PostgresStore) Update(ctx context.Context, d *models.Deliverable) error {
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal deliverable metadata: %w", err)
	}
	query := `
		UPDATE deliverables SET
			status = $2,
			non_conformity_flagged_at = $3,
			resolved_at = $4,
			metadata = $5,
			updated_at = $6
		WHERE id = $1
	`
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		string(d.Status),
		d.NonConformityFlaggedAt,
		d.ResolvedAt,
		metadata,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update deliverable: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update deliverable rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByMandate(ctx context.Context, mandateID id.MandateID) ([]*models.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE mandate_id = $1 ORDER BY uploaded_at, id`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, uuid.UUID(mandateID))
	if err != nil {
		return nil, fmt.Errorf("list deliverables by mandate: %w", err)
	}
	defer rows.Close()

	var out []*models.Deliverable
	for rows.Next() {
		d, err := scanDeliverable(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deliverable: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type deliverableRow interface {
	Scan(dest ...any) error
}

func scanDeliverable(row deliverableRow) (*models.Deliverable, error) {
	var (
		d             models.Deliverable
		deliverableID uuid.UUID
		mandateID     uuid.UUID
		uploader      string
		objective     string
		status        string
		flaggedAt     sql.NullTime
		resolvedAt    sql.NullTime
		metadata      []byte
	)
	err := row.Scan(&deliverableID, &mandateID, &uploader, &d.Label, &objective, &status, &d.UploadedAt,
		&d.EvaluationDeadlineSnapshot, &flaggedAt, &resolvedAt, &metadata, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ID = id.DeliverableID(deliverableID)
	d.MandateID = id.MandateID(mandateID)
	d.Uploader = id.UserRef(uploader)
	d.Objective = id.ObjectiveRef(objective)
	d.Status = models.DeliverableStatus(status)
	d.Metadata = models.Metadata{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode deliverable metadata: %w", err)
		}
	}
	if flaggedAt.Valid {
		at := flaggedAt.Time
		d.NonConformityFlaggedAt = &at
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		d.ResolvedAt = &at
	}
	return &d, nil
}
