package pattern

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmind/skillmind/internal/embed"
)

func testConfig() Config {
	return Config{
		MaxPatterns:            100,
		ImportanceThreshold:    0.01,
		ConsolidationThreshold: 0.2,
		FisherDecay:            0.99,
		FisherSampleSize:       50,
		AutoConsolidate:        true,
		AccessTracking:         true,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), "", embed.NewStaticEmbedder(), testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// S1 (Store + retrieve): identical context round-trips with similarity 1.0
// and rank 1, and increments access_count.
func TestStorePattern_ThenFindSimilar_S1(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.StorePattern(ctx, PatternInput{
		ContextText: `{"installed":["commit"],"frameworks":["react"]}`,
		SkillID:     "jest-helper",
		Source:      SourceRecommend,
	}, Outcome{Type: OutcomeAccept})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	results, err := s.FindSimilarPatterns(ctx, SimilarQuery{
		ContextText: `{"installed":["commit"],"frameworks":["react"]}`,
		SkillID:     "jest-helper",
		Limit:       5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, 1, top.Rank)
	assert.InDelta(t, 1.0, top.Similarity, 1e-6)
	assert.Equal(t, id, top.Pattern.ID)
	assert.Equal(t, OutcomeAccept, top.Pattern.OutcomeType)
	assert.GreaterOrEqual(t, top.Pattern.AccessCount, 1)
}

// Property 5: dedup on near-duplicate store.
func TestStorePattern_NearDuplicate_Dedups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1, err := s.StorePattern(ctx, PatternInput{
		ContextText: "identical context for dedup test",
		SkillID:     "skill-a",
	}, Outcome{Type: OutcomeAccept})
	require.NoError(t, err)

	id2, err := s.StorePattern(ctx, PatternInput{
		ContextText: "identical context for dedup test",
		SkillID:     "skill-a",
	}, Outcome{Type: OutcomeUsage})
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "near-identical context for the same skill should update, not duplicate")

	count, err := s.countPatterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFindSimilarPatterns_FiltersBySkillID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.StorePattern(ctx, PatternInput{ContextText: "context alpha", SkillID: "skill-a"}, Outcome{Type: OutcomeAccept})
	require.NoError(t, err)
	_, err = s.StorePattern(ctx, PatternInput{ContextText: "context beta", SkillID: "skill-b"}, Outcome{Type: OutcomeAccept})
	require.NoError(t, err)

	results, err := s.FindSimilarPatterns(ctx, SimilarQuery{ContextText: "context alpha", SkillID: "skill-a", Limit: 10})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "skill-a", r.Pattern.SkillID)
	}
}

func TestConsolidate_NoOpWhenBelowThreshold(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.cfg.AutoConsolidate = false

	_, err := s.StorePattern(ctx, PatternInput{ContextText: "one pattern", SkillID: "skill-a"}, Outcome{Type: OutcomeAccept})
	require.NoError(t, err)

	result, err := s.Consolidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.PreservationRate)
}

// S6 (Consolidation preserves important): alternating accept/dismiss
// patterns across many skills; consolidation should preserve the vast
// majority of the high-reward patterns.
func TestConsolidate_PreservesImportantPatterns_S6(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.cfg.MaxPatterns = 100
	s.cfg.AutoConsolidate = false

	acceptIDs := make(map[string]bool)
	for i := 0; i < 200; i++ {
		skillID := fmt.Sprintf("skill-%d", i%10)
		outcome := OutcomeAccept
		if i%2 == 1 {
			outcome = OutcomeDismiss
		}
		id, err := s.StorePattern(ctx, PatternInput{
			ContextText: fmt.Sprintf("synthetic pattern context number %d", i),
			SkillID:     skillID,
		}, Outcome{Type: outcome})
		require.NoError(t, err)
		if outcome == OutcomeAccept {
			acceptIDs[id] = true
		}
	}

	_, err := s.Consolidate(ctx)
	require.NoError(t, err)

	remaining, err := s.allPatterns(ctx)
	require.NoError(t, err)

	survivingAccepts := 0
	for _, p := range remaining {
		if acceptIDs[p.ID] {
			survivingAccepts++
		}
	}
	// at least 95% of distinct accept patterns recorded should survive
	assert.GreaterOrEqual(t, float64(survivingAccepts)/float64(len(acceptIDs)), 0.95)
}

func TestConsolidationHistory_ReturnsRecordedRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.cfg.AutoConsolidate = false

	for i := 0; i < 5; i++ {
		_, err := s.StorePattern(ctx, PatternInput{
			ContextText: fmt.Sprintf("history pattern %d", i),
			SkillID:     "skill-a",
		}, Outcome{Type: OutcomeAccept})
		require.NoError(t, err)
	}
	s.cfg.ConsolidationThreshold = 0
	_, err := s.Consolidate(ctx)
	require.NoError(t, err)

	history, err := s.ConsolidationHistory(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.GreaterOrEqual(t, history[0].PatternsProcessed, 0)
}

func TestStats_ReflectsStoredPatterns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.PatternCount)
	assert.Zero(t, empty.AverageImportance)

	_, err = s.StorePattern(ctx, PatternInput{
		ContextText: "stats pattern one",
		SkillID:     "skill-a",
	}, Outcome{Type: OutcomeAccept})
	require.NoError(t, err)
	_, err = s.StorePattern(ctx, PatternInput{
		ContextText: "stats pattern two",
		SkillID:     "skill-b",
	}, Outcome{Type: OutcomeDismiss})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PatternCount)
	assert.Greater(t, stats.AverageImportance, 0.0)
}
