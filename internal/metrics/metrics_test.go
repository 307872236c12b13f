package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordClaim(true)
	c.RecordClaim(false)
	c.RecordClaim(false)
	c.RecordOutcome("posted")
	c.RecordRetry()
	c.RecordEnqueued()
	c.RecordPublishLatency(1500 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.claims.WithLabelValues("won")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.claims.WithLabelValues("lost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("posted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["postqueue_publish_duration_seconds"])
	assert.True(t, names["postqueue_enqueued_total"])
}
