package telemetry

import (
	"context"

	"github.com/skillmind/skillmind/internal/pattern"
)

// ConsolidationHistoryProvider is satisfied by *pattern.Store. Kept
// narrow so telemetry depends only on the one method it surfaces.
type ConsolidationHistoryProvider interface {
	ConsolidationHistory(ctx context.Context, limit int) ([]pattern.ConsolidationRecord, error)
}

// ConsolidationSnapshot summarizes recent consolidation runs for
// observability surfaces (CLI `status`, MCP `index_status`-adjacent
// reads).
type ConsolidationSnapshot struct {
	Runs                []pattern.ConsolidationRecord
	AveragePreservation float64
	LowestPreservation  float64
	BelowThresholdCount int
}

// CollectConsolidationSnapshot reads the most recent consolidation runs
// and summarizes them. BelowThresholdCount flags runs whose
// preservation_rate fell under the caller's expectation (observability
// only, per §7: consolidation anomalies are never errors).
func CollectConsolidationSnapshot(ctx context.Context, provider ConsolidationHistoryProvider, limit int, minExpectedPreservation float64) (*ConsolidationSnapshot, error) {
	runs, err := provider.ConsolidationHistory(ctx, limit)
	if err != nil {
		return nil, err
	}

	snap := &ConsolidationSnapshot{Runs: runs}
	if len(runs) == 0 {
		return snap, nil
	}

	snap.LowestPreservation = 1.0
	var sum float64
	for _, r := range runs {
		sum += r.PreservationRate
		if r.PreservationRate < snap.LowestPreservation {
			snap.LowestPreservation = r.PreservationRate
		}
		if r.PreservationRate < minExpectedPreservation {
			snap.BelowThresholdCount++
		}
	}
	snap.AveragePreservation = sum / float64(len(runs))
	return snap, nil
}
