package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCacheCountersIncrement(t *testing.T) {
	before := counterValue(t, CacheHitsTotal)
	CacheHitsTotal.Inc()
	after := counterValue(t, CacheHitsTotal)

	if after != before+1 {
		t.Errorf("CacheHitsTotal = %v, want %v", after, before+1)
	}
}

func TestLabeledCollectorsAcceptKnownLabels(t *testing.T) {
	// These panic on cardinality mismatch; calling them is the test.
	CacheEvictionsTotal.WithLabelValues("lru").Inc()
	CacheEvictionsTotal.WithLabelValues("memory").Inc()
	CacheEvictionsTotal.WithLabelValues("stale").Inc()
	CacheEvictionsTotal.WithLabelValues("ttl").Inc()
	GenerationResults.WithLabelValues("image", "ok").Inc()
	GenerationResults.WithLabelValues("video", "placeholder").Inc()
	PoolJobsTotal.WithLabelValues("panic").Inc()
	FilesystemStaleErrors.WithLabelValues("stat").Inc()
}

func TestGaugesSettable(t *testing.T) {
	CacheEntries.Set(12)
	CacheMemoryBytes.Set(1 << 20)
	PoolQueueDepth.Set(0)
	MemoryUsageRatio.Set(0.5)
}
