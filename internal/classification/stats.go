package classification

import (
	"sync"
	"time"
)

// Cost model constants. The baseline is what a full external classifier
// run would cost per request.
const (
	localTierCostUSD      = 0.01
	hybridTierBaseCostUSD = 0.02
	hybridCostLengthChars = 1000.0
	fullExternalCostUSD   = 0.26
)

// CostEstimate returns the processing cost of a request. LOCAL tier is a
// fixed constant; HYBRID scales linearly with text length above a
// 1000-character baseline.
func CostEstimate(tier Tier, textLen int) float64 {
	switch tier {
	case TierHybrid:
		multiplier := float64(textLen) / hybridCostLengthChars
		if multiplier < 1.0 {
			multiplier = 1.0
		}
		return hybridTierBaseCostUSD * multiplier
	default:
		return localTierCostUSD
	}
}

// StatsTracker keeps the process-wide running aggregates. The running
// mean update is a read-modify-write that is not safe under concurrent
// increments, so every update is serialized through one mutex.
type StatsTracker struct {
	mu    sync.Mutex
	stats ProcessingStats
}

// NewStatsTracker creates an empty tracker
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// Record folds one completed classification into the running aggregates
func (t *StatsTracker) Record(analysis DirectiveAnalysis, tier Tier, latency time.Duration, costUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.TotalProcessed++
	switch tier {
	case TierLocal:
		t.stats.LocalTierCount++
	case TierHybrid:
		t.stats.HybridTierCount++
	}

	n := float64(t.stats.TotalProcessed)
	latencyMs := float64(latency.Milliseconds())
	savingsPct := ((fullExternalCostUSD - costUSD) / fullExternalCostUSD) * 100.0

	t.stats.AvgConfidence = (t.stats.AvgConfidence*(n-1) + analysis.ConfidenceScore) / n
	t.stats.AvgLatencyMs = (t.stats.AvgLatencyMs*(n-1) + latencyMs) / n
	t.stats.AvgCostSavingsPct = (t.stats.AvgCostSavingsPct*(n-1) + savingsPct) / n
}

// Snapshot returns a copy of the current aggregates
func (t *StatsTracker) Snapshot() ProcessingStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
