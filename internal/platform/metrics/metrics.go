package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so services can run without instrumentation.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	Evaluations     *prometheus.CounterVec
	BallotsCast     *prometheus.CounterVec
	Tallies         *prometheus.CounterVec
	SweepDuration   prometheus.Histogram
	SweepVisited    prometheus.Counter
	SweepFailures   prometheus.Counter
	SweepSkipped    prometheus.Counter
	OutboxPublished prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_state_transitions_total",
			Help: "State transitions applied, by entity and target status",
		}, []string{"entity", "to"}),
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_evaluations_recorded_total",
			Help: "Evaluator verdicts recorded, by verdict",
		}, []string{"verdict"}),
		BallotsCast: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_ballots_cast_total",
			Help: "Ballots cast or replaced, by vote type",
		}, []string{"vote_type"}),
		Tallies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_tallies_total",
			Help: "Votes tallied, by vote type and outcome",
		}, []string{"vote_type", "outcome"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_sweep_duration_seconds",
			Help:    "Wall time of one automation sweep run",
			Buckets: prometheus.DefBuckets,
		}),
		SweepVisited: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_sweep_mandates_visited_total",
			Help: "Mandates visited by the automation sweep",
		}),
		SweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_sweep_mandate_failures_total",
			Help: "Per-mandate failures during automation sweeps",
		}),
		SweepSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_sweep_runs_skipped_total",
			Help: "Sweep runs skipped because another run held the lock",
		}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_outbox_events_published_total",
			Help: "Outbox events relayed to the event bus",
		}),
	}
}

func (m *Metrics) IncTransition(entity, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(entity, to).Inc()
}

func (m *Metrics) IncEvaluation(verdict string) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(verdict).Inc()
}

func (m *Metrics) IncBallot(voteType string) {
	if m == nil {
		return
	}
	m.BallotsCast.WithLabelValues(voteType).Inc()
}

func (m *Metrics) IncTally(voteType, outcome string) {
	if m == nil {
		return
	}
	m.Tallies.WithLabelValues(voteType, outcome).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration, visited, failures int) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
	m.SweepVisited.Add(float64(visited))
	m.SweepFailures.Add(float64(failures))
}

func (m *Metrics) IncSweepSkipped() {
	if m == nil {
		return
	}
	m.SweepSkipped.Inc()
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(n))
}
