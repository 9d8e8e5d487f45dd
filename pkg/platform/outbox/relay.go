package outbox

import (
	"context"
	"log/slog"
	"time"

	id "agora/pkg/domain"
)

const defaultRelayBatch = 100

// Relay publishes pending outbox rows and marks them published only after the
// publisher acknowledged them. Delivery is at-least-once: a crash between
// publish and mark republishes the batch on the next cycle.
type Relay struct {
	store     Store
	publisher Publisher
	batchSize int
	logger    *slog.Logger
	onPublish func(n int)
}

type RelayOption func(*Relay)

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithRelayBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithPublishHook is called with the number of events shipped per cycle.
func WithPublishHook(fn func(n int)) RelayOption {
	return func(r *Relay) {
		r.onPublish = fn
	}
}

func NewRelay(store Store, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		batchSize: defaultRelayBatch,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce relays one bounded batch and returns how many events were published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.store.ListPending(ctx, r.batchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "outbox list failed",
			"event", "outbox_list_failed",
			"error", err,
		)
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := r.publisher.Publish(ctx, pending); err != nil {
		r.logger.ErrorContext(ctx, "outbox publish failed",
			"event", "outbox_publish_failed",
			"batch_size", len(pending),
			"error", err,
		)
		return 0, err
	}

	ids := make([]id.OutboxEventID, len(pending))
	for i, ev := range pending {
		ids[i] = ev.ID
	}
	if err := r.store.MarkPublished(ctx, ids, time.Now().UTC()); err != nil {
		r.logger.ErrorContext(ctx, "outbox mark published failed",
			"event", "outbox_mark_failed",
			"batch_size", len(pending),
			"error", err,
		)
		return 0, err
	}

	if r.onPublish != nil {
		r.onPublish(len(pending))
	}
	r.logger.DebugContext(ctx, "outbox batch published",
		"event", "outbox_published",
		"count", len(pending),
	)
	return len(pending), nil
}

// Run relays on every tick until ctx is cancelled. Cycle failures are logged
// and retried on the next tick.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = r.RunOnce(ctx)
		}
	}
}
