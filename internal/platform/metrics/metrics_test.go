package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Run("records on a private registry", func(t *testing.T) {
		m := New(prometheus.NewRegistry())
		m.IncTransition("mandate", "completed")
		m.IncTransition("mandate", "completed")
		m.ObserveSweep(time.Second, 3, 1)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("mandate", "completed")))
		assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepVisited))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepFailures))
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.IncTransition("mandate", "expired")
			m.IncBallot("binary")
			m.ObserveSweep(time.Second, 1, 0)
			m.AddOutboxPublished(2)
		})
	})
}
