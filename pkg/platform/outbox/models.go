// Package outbox records domain events in the same unit of work as the state
// change that produced them, for later relay to the event bus.
package outbox

import (
	"context"
	"time"

	id "agora/pkg/domain"
)

// EventType names a domain event on the bus.
type EventType string

const (
	EventMandateCreated       EventType = "mandate.created"
	EventMandateAssigned      EventType = "mandate.assigned"
	EventMandateStarted       EventType = "mandate.started"
	EventMandateCompleted     EventType = "mandate.completed"
	EventMandateExpired       EventType = "mandate.expired"
	EventMandateRevoked       EventType = "mandate.revoked"
	EventDeliverableSubmitted EventType = "deliverable.submitted"
	EventDeliverableResolved  EventType = "deliverable.resolved"
	EventDeliverableFlagged   EventType = "deliverable.flagged"
	EventEvaluationRecorded   EventType = "evaluation.recorded"
	EventRevocationOpened     EventType = "revocation.opened"
	EventRevocationVoting     EventType = "revocation.vote_attached"
	EventRevocationResolved   EventType = "revocation.resolved"
	EventRevocationWithdrawn  EventType = "revocation.withdrawn"
	EventVoteCreated          EventType = "vote.created"
	EventVoteClosed           EventType = "vote.closed"
)

// Aggregate types used as the partition key namespace.
const (
	AggregateMandate     = "mandate"
	AggregateDeliverable = "deliverable"
	AggregateRevocation  = "revocation"
	AggregateVote        = "vote"
)

// Event is one pending or published outbox row.
type Event struct {
	ID            id.OutboxEventID `json:"id"`
	AggregateType string           `json:"aggregate_type"`
	AggregateID   string           `json:"aggregate_id"`
	Type          EventType        `json:"type"`
	Payload       map[string]any   `json:"payload,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
	PublishedAt   *time.Time       `json:"published_at,omitempty"`
}

// NewEvent builds an event with a fresh ID.
func NewEvent(aggregateType, aggregateID string, eventType EventType, occurredAt time.Time, payload map[string]any) Event {
	return Event{
		ID:            id.NewOutboxEventID(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       payload,
		OccurredAt:    occurredAt,
	}
}

//go:generate mockgen -source=models.go -destination=mocks/mocks.go -package=mocks Store,Publisher

// Appender is the write side used by services inside their unit of work.
type Appender interface {
	Append(ctx context.Context, event Event) error
}

// Store is the full outbox persistence contract used by the relay.
type Store interface {
	Appender
	ListPending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []id.OutboxEventID, publishedAt time.Time) error
}

// Publisher ships events to the bus.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}

// Emit appends event when an appender is configured.
func Emit(ctx context.Context, appender Appender, event Event) error {
	if appender == nil {
		return nil
	}
	return appender.Append(ctx, event)
}
