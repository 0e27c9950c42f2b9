package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmind/skillmind/internal/config"
	"github.com/skillmind/skillmind/internal/router"
	"github.com/skillmind/skillmind/internal/telemetry"
)

func TestBuildComponents_ConstructsStoreRouterAndEmbedder(t *testing.T) {
	cfg := config.NewConfig()
	cfg.PatternStore.DBPath = ""
	cfg.Embedding.Provider = "static"

	comps, err := buildComponents(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = comps.Close() }()

	assert.NotNil(t, comps.store)
	assert.NotNil(t, comps.router)
	assert.NotNil(t, comps.embedder)
}

func testContext() context.Context {
	return context.Background()
}

func testConfigWithStaticEmbedding() *config.Config {
	cfg := config.NewConfig()
	cfg.PatternStore.DBPath = ""
	cfg.Embedding.Provider = "static"
	return cfg
}

func TestDefaultExperts_IsAStaticCatalogOfEight(t *testing.T) {
	experts := defaultExperts()
	require.Len(t, experts, 8)

	ids := map[string]bool{}
	for _, e := range experts {
		ids[e.ID] = true
	}
	for _, want := range []string{
		"balanced-1", "speed-1", "quality-1",
		"balanced-2", "speed-2", "quality-2",
		"specialized-code", "specialized-ops",
	} {
		assert.True(t, ids[want], "missing expert %s", want)
	}
}

func TestDefaultExperts_SpecializedExpertsSupportExactlyOneTool(t *testing.T) {
	for _, e := range defaultExperts() {
		if e.Type != router.ExpertSpecialized {
			continue
		}
		assert.Len(t, e.SupportedTools, 1, "specialized expert %s should support exactly one tool", e.ID)
	}
}

func TestNewQueryMetrics_BacksOntoThePatternStoresOwnDatabase(t *testing.T) {
	comps, err := buildComponents(testContext(), testConfigWithStaticEmbedding())
	require.NoError(t, err)
	defer func() { _ = comps.Close() }()

	metrics := newQueryMetrics(comps)
	require.NotNil(t, metrics)

	metrics.Record(telemetry.QueryEvent{Query: "example", QueryType: telemetry.QueryTypeLexical, ResultCount: 1})
	require.NoError(t, metrics.Flush())

	var count int
	row := comps.store.DB().QueryRow("SELECT count FROM query_type_stats WHERE query_type = ?", string(telemetry.QueryTypeLexical))
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}
