package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "agora/pkg/domain"
	"agora/pkg/platform/outbox"
	txcontext "agora/pkg/platform/tx"
)

// Store implements outbox.Store on the outbox table. Append joins the
// caller's transaction when one is carried by ctx, which is what makes the
// outbox transactional.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event outbox.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(event.ID),
		event.AggregateType,
		event.AggregateID,
		string(event.Type),
		payload,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *Store) ListPending(ctx context.Context, limit int) ([]outbox.Event, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var (
			eventID   uuid.UUID
			eventType string
			payload   []byte
			ev        outbox.Event
		)
		if err := rows.Scan(&eventID, &ev.AggregateType, &ev.AggregateID, &eventType, &payload, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		ev.ID = id.OutboxEventID(eventID)
		ev.Type = outbox.EventType(eventType)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode outbox payload: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, ids []id.OutboxEventID, publishedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, eventID := range ids {
		raw[i] = eventID.String()
	}
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx,
		`UPDATE outbox SET published_at = $2 WHERE id = ANY($1::uuid[]) AND published_at IS NULL`,
		pq.Array(raw), publishedAt,
	)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
