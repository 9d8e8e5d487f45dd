package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"agora/internal/mandate/models"
	id "agora/pkg/domain"
	txcontext "agora/pkg/platform/tx"
)

// PostgresStore persists evaluations; the (deliverable_id, evaluator) unique
// key makes a later verdict overwrite the earlier one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, e *models.Evaluation) error {
	query := `
		INSERT INTO evaluations (id, deliverable_id, evaluator, verdict, comment, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (deliverable_id, evaluator) DO UPDATE SET
			id = EXCLUDED.id,
			verdict = EXCLUDED.verdict,
			comment = EXCLUDED.comment,
			recorded_at = EXCLUDED.recorded_at
	`
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(e.ID),
		uuid.UUID(e.DeliverableID),
		string(e.Evaluator),
		string(e.Verdict),
		e.Comment,
		e.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert evaluation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByDeliverable(ctx context.Context, deliverableID id.DeliverableID) ([]*models.Evaluation, error) {
	query := `
		SELECT id, deliverable_id, evaluator, verdict, comment, recorded_at
		FROM evaluations
		WHERE deliverable_id = $1
		ORDER BY evaluator
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, uuid.UUID(deliverableID))
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var out []*models.Evaluation
	for rows.Next() {
		var (
			e             models.Evaluation
			evaluationID uuid.UUID
			rowDeliv     uuid.UUID
			evaluator    string
			verdict      string
		)
		if err := rows.Scan(&evaluationID, &rowDeliv, &evaluator, &verdict, &e.Comment, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		e.ID = id.EvaluationID(evaluationID)
		e.DeliverableID = id.DeliverableID(rowDeliv)
		e.Evaluator = id.UserRef(evaluator)
		e.Verdict = models.Verdict(verdict)
		out = append(out, &e)
	}
	return out, rows.Err()
}
