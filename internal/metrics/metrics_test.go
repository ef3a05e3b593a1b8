package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewMetrics registers its collectors against the default Prometheus
// registry, so every subtest below shares a single instance.
func TestMetrics(t *testing.T) {
	m := NewMetrics()

	t.Run("RecordConversion labels success and failure separately", func(t *testing.T) {
		m.RecordConversion("docx", true, 50*time.Millisecond)
		m.RecordConversion("docx", false, 10*time.Millisecond)

		assert.Equal(t, float64(1), testutil.ToFloat64(m.ConversionTotal.WithLabelValues("docx", "success")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ConversionTotal.WithLabelValues("docx", "failure")))
	})

	t.Run("RecordRecycle labels by reason", func(t *testing.T) {
		m.RecordRecycle("idle")
		m.RecordRecycle("idle")
		m.RecordRecycle("recycle_after")

		assert.Equal(t, float64(2), testutil.ToFloat64(m.WorkerRecycles.WithLabelValues("idle")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.WorkerRecycles.WithLabelValues("recycle_after")))
	})

	t.Run("cache hit/miss counters increment independently", func(t *testing.T) {
		m.CacheHits.Inc()
		m.CacheMisses.Inc()
		m.CacheMisses.Inc()

		require.Equal(t, float64(1), testutil.ToFloat64(m.CacheHits))
		require.Equal(t, float64(2), testutil.ToFloat64(m.CacheMisses))
	})
}
