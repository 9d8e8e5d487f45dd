package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"agora/internal/evaluation"
	evalhandler "agora/internal/evaluation/handler"
	mandatehandler "agora/internal/mandate/handler"
	mandateservice "agora/internal/mandate/service"
	"agora/internal/platform/config"
	"agora/internal/platform/httpserver"
	"agora/internal/platform/logger"
	"agora/internal/platform/metrics"
	platformredis "agora/internal/platform/redis"
	revhandler "agora/internal/revocation/handler"
	revocationservice "agora/internal/revocation/service"
	"agora/internal/sweep"
	httptransport "agora/internal/transport/http"
	votehandler "agora/internal/vote/handler"
	votemodels "agora/internal/vote/models"
	voteservice "agora/internal/vote/service"
	"agora/pkg/platform/outbox"
	"agora/pkg/platform/outbox/kafka"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	st, err := openStores(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer st.Close()

	mandates := mandateservice.New(st.mandates, st.deliverables,
		mandateservice.WithTxRunner(st.runner),
		mandateservice.WithDefaults(cfg.Mandate),
		mandateservice.WithOutbox(st.outbox),
		mandateservice.WithMetrics(m),
		mandateservice.WithLogger(log),
	)
	evaluations := evaluation.NewService(st.evaluations, st.deliverables, mandates,
		evaluation.WithTxRunner(st.runner),
		evaluation.WithOutbox(st.outbox),
		evaluation.WithMetrics(m),
		evaluation.WithLogger(log),
	)
	votes := voteservice.New(st.votes,
		voteservice.WithTxRunner(st.runner),
		voteservice.WithTiePolicy(votemodels.TiePolicy(cfg.BinaryTiePolicy)),
		voteservice.WithOutbox(st.outbox),
		voteservice.WithMetrics(m),
		voteservice.WithLogger(log),
	)
	revocations := revocationservice.New(st.revocations, mandates, votes,
		revocationservice.WithTxRunner(st.runner),
		revocationservice.WithOutbox(st.outbox),
		revocationservice.WithMetrics(m),
		revocationservice.WithLogger(log),
	)

	health := map[string]httptransport.HealthCheck{"database": st.health}
	var lock sweep.Lock = sweep.NewLocalLock()
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		lock = sweep.NewRedisLock(redisClient.Client, sweep.DefaultLockKey, cfg.Sweep.LockTTL)
		health["redis"] = redisClient.Health
	} else {
		log.Warn("REDIS_URL not set, sweep lock is process-local")
	}

	sweeper := sweep.New(mandates, evaluations,
		sweep.WithLock(lock),
		sweep.WithTxRunner(st.runner),
		sweep.WithBatchSize(cfg.Sweep.BatchSize),
		sweep.WithConcurrency(cfg.Sweep.Concurrency),
		sweep.WithMetrics(m),
		sweep.WithLogger(log),
	)

	router := httptransport.NewRouter(httptransport.Config{
		Logger: log,
		Handlers: []httptransport.Registrar{
			mandatehandler.New(mandates, log),
			evalhandler.New(evaluations, log),
			votehandler.New(votes, log),
			revhandler.New(revocations, log),
		},
		Sweeper:  sweeper,
		Gatherer: prometheus.DefaultGatherer,
		Health:   health,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting agora", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweeper.Run(ctx, cfg.Sweep.Interval)
		return nil
	})
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		defer publisher.Close()
		if err := publisher.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("ensure kafka topic failed", "topic", cfg.Kafka.Topic, "error", err)
		}
		relay := outbox.NewRelay(st.outbox, publisher,
			outbox.WithRelayLogger(log),
			outbox.WithPublishHook(m.AddOutboxPublished),
		)
		g.Go(func() error {
			if err := relay.Run(ctx, cfg.Kafka.RelayInterval); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox events stay pending")
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
