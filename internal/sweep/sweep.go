// Package sweep runs the automation sweep: on every tick it flags lapsed
// deliverables and expires lapsed mandates, stamping each visited mandate's
// automation watermark in the same unit of work.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"agora/internal/evaluation"
	"agora/internal/mandate/models"
	mandateservice "agora/internal/mandate/service"
	"agora/internal/platform/metrics"
	id "agora/pkg/domain"
	"agora/pkg/platform/tx"
	"agora/pkg/requestcontext"
)

var tracer = otel.Tracer("agora/sweep")

type Mandates interface {
	ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Mandate, error)
	ListDeliverables(ctx context.Context, mandateID id.MandateID) ([]*models.Deliverable, error)
	SweepLapse(ctx context.Context, mandateID id.MandateID, now time.Time) (mandateservice.SweepResult, error)
}

type Deliverables interface {
	FlagLapsed(ctx context.Context, deliverableID id.DeliverableID, now time.Time) (*evaluation.FlagResult, error)
}

// Failure is one mandate the run could not process. It is retried next run.
type Failure struct {
	MandateID id.MandateID
	Err       error
}

// Report summarises one run.
type Report struct {
	StartedAt time.Time
	Visited   int
	Flagged   int
	Expired   int
	Completed int
	Failures  []Failure
	// Skipped is set when another run held the lock.
	Skipped bool
}

type Sweeper struct {
	mandates     Mandates
	deliverables Deliverables
	lock         Lock
	tx           tx.Runner
	batchSize    int
	concurrency  int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Option func(*Sweeper)

func WithLock(lock Lock) Option {
	return func(s *Sweeper) {
		s.lock = lock
	}
}

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Sweeper) {
		s.tx = runner
	}
}

// WithBatchSize bounds the mandates visited per run.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency bounds the mandates processed in parallel.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func New(mandates Mandates, deliverables Deliverables, opts ...Option) *Sweeper {
	s := &Sweeper{
		mandates:     mandates,
		deliverables: deliverables,
		batchSize:    500,
		concurrency:  8,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lock == nil {
		s.lock = NewLocalLock()
	}
	if s.tx == nil {
		s.tx = tx.NewShardedRunner(0)
	}
	return s
}

// RunOnce performs one sweep at requestcontext.Now(ctx), truncated to the
// microsecond precision PostgreSQL keeps for the watermark. Per-mandate failures
// are collected in the report and do not stop the run; the returned error is
// reserved for failures of the run itself.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	started := time.Now()
	now := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
	ctx = requestcontext.WithTime(ctx, now)
	ctx, span := tracer.Start(ctx, "sweep.RunOnce",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("sweep.now", now.Format(time.RFC3339))),
	)
	defer span.End()

	report := Report{StartedAt: now}
	unlock, acquired, err := s.lock.TryLock(ctx)
	if err != nil {
		span.RecordError(err)
		return report, err
	}
	if !acquired {
		report.Skipped = true
		s.metrics.IncSweepSkipped()
		s.logger.InfoContext(ctx, "sweep skipped, another run holds the lock", "event", "sweep_skipped")
		return report, nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release sweep lock", "event", "sweep_unlock_failed", "error", err)
		}
	}()

	candidates, err := s.mandates.ListSweepCandidates(ctx, now, s.batchSize)
	if err != nil {
		span.RecordError(err)
		return report, err
	}
	s.logger.InfoContext(ctx, "sweep started",
		"event", "sweep_started",
		"candidates", len(candidates),
		"now", now,
	)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, m := range candidates {
		mandateID := m.ID
		g.Go(func() error {
			visit, err := s.visit(ctx, mandateID, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, Failure{MandateID: mandateID, Err: err})
				s.logger.ErrorContext(ctx, "sweep failed for mandate",
					"event", "sweep_mandate_failed",
					"mandate_id", mandateID.String(),
					"error", err,
				)
				return nil
			}
			report.Visited++
			report.Flagged += visit.flagged
			if visit.expired {
				report.Expired++
			}
			if visit.completed {
				report.Completed++
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(started)
	s.metrics.ObserveSweep(elapsed, report.Visited, len(report.Failures))
	span.SetAttributes(
		attribute.Int("sweep.visited", report.Visited),
		attribute.Int("sweep.flagged", report.Flagged),
		attribute.Int("sweep.expired", report.Expired),
		attribute.Int("sweep.failures", len(report.Failures)),
	)
	s.logger.InfoContext(ctx, "sweep finished",
		"event", "sweep_finished",
		"visited", report.Visited,
		"flagged", report.Flagged,
		"expired", report.Expired,
		"completed", report.Completed,
		"failures", len(report.Failures),
		"duration", elapsed,
	)
	return report, nil
}

type visitResult struct {
	flagged   int
	expired   bool
	completed bool
}

// visit handles one mandate in a single unit of work: lapsed deliverables
// first, then the mandate deadline and watermark.
func (s *Sweeper) visit(ctx context.Context, mandateID id.MandateID, now time.Time) (visitResult, error) {
	var out visitResult
	err := s.tx.RunInTx(ctx, models.LockKey(mandateID), func(ctx context.Context) error {
		out = visitResult{}
		deliverables, err := s.mandates.ListDeliverables(ctx, mandateID)
		if err != nil {
			return err
		}
		for _, d := range deliverables {
			if !d.IsLapsed(now) {
				continue
			}
			res, err := s.deliverables.FlagLapsed(ctx, d.ID, now)
			if err != nil {
				return err
			}
			if !res.Flagged {
				continue
			}
			out.flagged++
			if res.Mandate != nil {
				switch res.Mandate.Status {
				case models.MandateStatusExpired:
					out.expired = true
				case models.MandateStatusCompleted:
					out.completed = true
				}
			}
		}

		lapse, err := s.mandates.SweepLapse(ctx, mandateID, now)
		if err != nil {
			return err
		}
		if lapse.Expired {
			out.expired = true
		}
		return nil
	})
	return out, err
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep run failed", "event", "sweep_failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
