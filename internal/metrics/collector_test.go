package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("plateflow")

	c.JobSubmitted("jterator", "run")
	c.JobSubmitted("jterator", "run")
	c.JobSubmitted("jterator", "collect")
	c.JobFailed("jterator", "run")
	c.MonitorIteration("jterator")
	c.RowsFused("cells", 30)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(c.jobsSubmitted.WithLabelValues("jterator", "run")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.jobsSubmitted.WithLabelValues("jterator", "collect")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.jobsFailed.WithLabelValues("jterator", "run")))
	assert.Equal(t, float64(30),
		testutil.ToFloat64(c.fusedRows.WithLabelValues("cells")))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	// Two collectors must not collide on registration.
	a := NewCollector("plateflow")
	b := NewCollector("plateflow")
	require.NotSame(t, a.Registry(), b.Registry())

	a.FusionFinished(1.5)
	b.FusionFinished(0.5)
}
