package cellgraph

import (
	"sync"
	"time"
)

// MetricsCollector receives stage-level measurements. Implementations must
// be safe for concurrent use: the cluster and layout stages report from
// separate goroutines.
type MetricsCollector interface {
	// RecordStage is called once per computed stage. Cache hits are not
	// recorded.
	RecordStage(stage Stage, elapsed time.Duration, err error)
}

// NoopMetricsCollector discards all measurements.
type NoopMetricsCollector struct{}

// RecordStage does nothing.
func (NoopMetricsCollector) RecordStage(Stage, time.Duration, error) {}

// StageStats aggregates measurements for one stage.
type StageStats struct {
	Count      int64
	Errors     int64
	TotalNanos int64
}

// BasicMetricsCollector aggregates per-stage counts and latency.
type BasicMetricsCollector struct {
	mu    sync.Mutex
	stats map[Stage]StageStats
}

// RecordStage records one stage execution.
func (c *BasicMetricsCollector) RecordStage(stage Stage, elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats == nil {
		c.stats = make(map[Stage]StageStats)
	}
	s := c.stats[stage]
	s.Count++
	s.TotalNanos += elapsed.Nanoseconds()
	if err != nil {
		s.Errors++
	}
	c.stats[stage] = s
}

// GetStats returns a copy of the aggregated measurements.
func (c *BasicMetricsCollector) GetStats() map[Stage]StageStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Stage]StageStats, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return out
}
