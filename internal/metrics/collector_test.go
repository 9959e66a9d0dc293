package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := NewCollector("roundtable", reg)

	c.SessionStarted()
	c.SessionFinished("finished")
	c.SessionFinished("stopped")
	c.TurnObserved("mock", "persisted", 0.2)
	c.TurnObserved("mock", "suspended", 1.5)
	c.UsageObserved(100, 40, 0.003)
	c.CompressionObserved()

	assert.Equal(t, float64(1), testutil.ToFloat64(c.sessionsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.sessionsFinished.WithLabelValues("finished")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.turnsTotal.WithLabelValues("mock", "persisted")))
	assert.Equal(t, float64(100), testutil.ToFloat64(c.tokensTotal.WithLabelValues("in")))
	assert.Equal(t, float64(40), testutil.ToFloat64(c.tokensTotal.WithLabelValues("out")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.compressions))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
