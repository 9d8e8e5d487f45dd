package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agora/internal/sweep"
	"agora/pkg/platform/httputil"
	"agora/pkg/platform/middleware/requestid"
	"agora/pkg/platform/middleware/requesttime"
	"agora/pkg/requestcontext"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// Sweeper triggers one automation sweep on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (sweep.Report, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config collects the router's collaborators.
type Config struct {
	Logger   *slog.Logger
	Handlers []Registrar
	Sweeper  Sweeper
	// Gatherer serves /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Health   map[string]HealthCheck
	Timeout  time.Duration
	// Clock overrides the request clock; tests pin it.
	Clock func() time.Time
}

// NewRouter wires the command and query surface, the sweep trigger, health
// and metrics.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	clock := requesttime.Middleware
	if cfg.Clock != nil {
		clock = requesttime.WithClock(cfg.Clock)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(clock)

	r.Get("/healthz", health(cfg.Health))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(api chi.Router) {
		api.Use(chimiddleware.Timeout(cfg.Timeout))
		api.Use(requestLogger(cfg.Logger))
		for _, h := range cfg.Handlers {
			h.Register(api)
		}
		if cfg.Sweeper != nil {
			api.Post("/sweep/tick", sweepTick(cfg.Sweeper, cfg.Logger))
		}
	})
	return r
}

// FailureResponse is one mandate the sweep could not process.
type FailureResponse struct {
	MandateID string `json:"mandate_id"`
	Error     string `json:"error"`
}

// SweepResponse mirrors sweep.Report.
type SweepResponse struct {
	StartedAt time.Time         `json:"started_at"`
	Skipped   bool              `json:"skipped"`
	Visited   int               `json:"visited"`
	Flagged   int               `json:"flagged"`
	Expired   int               `json:"expired"`
	Completed int               `json:"completed"`
	Failures  []FailureResponse `json:"failures"`
}

func sweepTick(s Sweeper, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		report, err := s.RunOnce(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "sweep tick failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
		resp := SweepResponse{
			StartedAt: report.StartedAt,
			Skipped:   report.Skipped,
			Visited:   report.Visited,
			Flagged:   report.Flagged,
			Expired:   report.Expired,
			Completed: report.Completed,
			Failures:  make([]FailureResponse, 0, len(report.Failures)),
		}
		for _, f := range report.Failures {
			resp.Failures = append(resp.Failures, FailureResponse{MandateID: f.MandateID.String(), Error: f.Err.Error()})
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"request_id", requestcontext.RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
