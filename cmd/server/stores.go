package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"agora/internal/evaluation"
	evalstore "agora/internal/evaluation/store"
	mandateservice "agora/internal/mandate/service"
	deliverablestore "agora/internal/mandate/store/deliverable"
	mandatestore "agora/internal/mandate/store/mandate"
	"agora/internal/platform/postgres"
	revocationservice "agora/internal/revocation/service"
	revocationstore "agora/internal/revocation/store"
	voteservice "agora/internal/vote/service"
	votestore "agora/internal/vote/store"
	"agora/pkg/platform/outbox"
	outboxmemory "agora/pkg/platform/outbox/store/memory"
	outboxpostgres "agora/pkg/platform/outbox/store/postgres"
	"agora/pkg/platform/tx"
)

const txTimeout = 5 * time.Second

// deliverableStore is read by the mandate state machine and written by the
// evaluation aggregator.
type deliverableStore interface {
	mandateservice.DeliverableStore
	evaluation.DeliverableStore
}

// stores groups every persistence port with the runner that scopes their
// units of work. All services share the one runner.
type stores struct {
	db           *sql.DB
	runner       tx.Runner
	mandates     mandateservice.MandateStore
	deliverables deliverableStore
	evaluations  evaluation.Store
	votes        voteservice.Store
	revocations  revocationservice.Store
	outbox       outbox.Store
}

// openStores picks PostgreSQL when a database URL is configured and falls
// back to in-memory stores otherwise.
func openStores(ctx context.Context, databaseURL string, logger *slog.Logger) (*stores, error) {
	if databaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		return &stores{
			runner:       tx.NewShardedRunner(txTimeout),
			mandates:     mandatestore.NewInMemoryStore(),
			deliverables: deliverablestore.NewInMemoryStore(),
			evaluations:  evalstore.NewInMemoryStore(),
			votes:        votestore.NewInMemoryStore(),
			revocations:  revocationstore.NewInMemoryStore(),
			outbox:       outboxmemory.NewInMemoryStore(),
		}, nil
	}

	db, err := postgres.Open(ctx, postgres.Config{
		URL:             databaseURL,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &stores{
		db:           db,
		runner:       tx.NewPostgresRunner(db, txTimeout),
		mandates:     mandatestore.NewPostgres(db),
		deliverables: deliverablestore.NewPostgres(db),
		evaluations:  evalstore.NewPostgres(db),
		votes:        votestore.NewPostgres(db),
		revocations:  revocationstore.NewPostgres(db),
		outbox:       outboxpostgres.New(db),
	}, nil
}

func (s *stores) health(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
