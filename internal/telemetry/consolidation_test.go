package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmind/skillmind/internal/pattern"
)

type fakeHistoryProvider struct {
	records []pattern.ConsolidationRecord
	err     error
}

func (f *fakeHistoryProvider) ConsolidationHistory(ctx context.Context, limit int) ([]pattern.ConsolidationRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func TestCollectConsolidationSnapshot_SummarizesRuns(t *testing.T) {
	provider := &fakeHistoryProvider{records: []pattern.ConsolidationRecord{
		{PreservationRate: 0.98},
		{PreservationRate: 0.90},
		{PreservationRate: 1.0},
	}}

	snap, err := CollectConsolidationSnapshot(context.Background(), provider, 10, 0.95)
	require.NoError(t, err)

	assert.Len(t, snap.Runs, 3)
	assert.InDelta(t, 0.96, snap.AveragePreservation, 1e-9)
	assert.Equal(t, 0.90, snap.LowestPreservation)
	assert.Equal(t, 1, snap.BelowThresholdCount)
}

func TestCollectConsolidationSnapshot_EmptyHistory(t *testing.T) {
	provider := &fakeHistoryProvider{}
	snap, err := CollectConsolidationSnapshot(context.Background(), provider, 10, 0.95)
	require.NoError(t, err)
	assert.Empty(t, snap.Runs)
	assert.Zero(t, snap.AveragePreservation)
}
