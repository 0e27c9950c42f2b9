package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillmind/skillmind/internal/config"
	"github.com/skillmind/skillmind/internal/embed"
	"github.com/skillmind/skillmind/internal/pattern"
	"github.com/skillmind/skillmind/internal/router"
	"github.com/skillmind/skillmind/internal/telemetry"
)

// components bundles the Pattern Store, SONA Router, and embedder built
// from a loaded Config, so commands that need the full stack (serve,
// recommend, status) can share one construction path.
type components struct {
	store    *pattern.Store
	router   *router.Router
	embedder embed.Embedder
	cfg      *config.Config
}

// Close releases the store and embedder. The router holds no resources
// of its own.
func (c *components) Close() error {
	var err error
	if c.store != nil {
		err = c.store.Close()
	}
	if c.embedder != nil {
		if cerr := c.embedder.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// loadComponents reads configuration from the current directory and
// builds the Pattern Store, SONA Router, and embedder it describes.
func loadComponents(ctx context.Context) (*components, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return buildComponents(ctx, cfg)
}

// buildComponents constructs the Pattern Store, SONA Router, and
// embedder described by cfg.
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	provider := embed.ParseProvider(cfg.Embedding.Provider)
	embedder, err := embed.NewEmbedder(ctx, provider, cfg.Embedding.Model)
	if err != nil {
		slog.Warn("embedder construction failed, falling back to static", slog.String("error", err.Error()))
		embedder = embed.NewStaticEmbedder768()
	}

	store, err := pattern.New(ctx, cfg.PatternStore.DBPath, embedder, pattern.Config{
		MaxPatterns:            cfg.PatternStore.MaxPatterns,
		ImportanceThreshold:    cfg.PatternStore.ImportanceThreshold,
		ConsolidationThreshold: cfg.PatternStore.ConsolidationThreshold,
		FisherDecay:            cfg.PatternStore.FisherDecay,
		FisherSampleSize:       cfg.PatternStore.FisherSampleSize,
		AutoConsolidate:        true,
		AccessTracking:         true,
	}, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern store: %w", err)
	}

	experts := defaultExperts()
	reg := router.NewRegistry(experts)
	for _, e := range experts {
		reg.SetState(e.ID, router.StateHealthy)
	}

	cache := router.NewDecisionCache(cfg.Router.DecisionCacheSize, cfg.Router.DecisionCacheTTL)
	rt := router.New(reg, cache, router.Config{
		ToolWeights:         toRouterToolWeights(cfg.Router.ToolWeights),
		CachingEnabled:      cfg.Router.DecisionCacheSize > 0,
		FallbackEnabled:     cfg.Router.FallbackEnabled,
		MinConfidenceMargin: cfg.Router.MinConfidenceMargin,
		CircuitMaxFailures:  cfg.Router.CircuitMaxFailures,
		CircuitResetTimeout: cfg.Router.CircuitResetTimeout,
	}, slog.Default())

	return &components{store: store, router: rt, embedder: embedder, cfg: cfg}, nil
}

// newQueryMetrics builds the query metrics collector the MCP server
// reports search telemetry through, backed by the Pattern Store's own
// SQLite handle (a file on disk, or the in-memory database tests and
// `PatternStore.DBPath == ""` configs use) so query metrics survive
// alongside pattern data without a second database file.
func newQueryMetrics(comps *components) *telemetry.QueryMetrics {
	if comps.store == nil {
		return telemetry.NewQueryMetrics(nil)
	}
	db := comps.store.DB()
	if db == nil {
		return telemetry.NewQueryMetrics(nil)
	}
	if err := telemetry.InitTelemetrySchema(db); err != nil {
		slog.Warn("telemetry_schema_init_failed", slog.String("error", err.Error()))
		return telemetry.NewQueryMetrics(nil)
	}
	store, err := telemetry.NewSQLiteMetricsStore(db)
	if err != nil {
		slog.Warn("telemetry_store_init_failed", slog.String("error", err.Error()))
		return telemetry.NewQueryMetrics(nil)
	}
	return telemetry.NewQueryMetrics(store)
}

// toRouterToolWeights adapts the config package's YAML-facing tool-weight
// profiles to the router package's ToolWeights, keeping the two packages
// decoupled from each other.
func toRouterToolWeights(profiles map[string]config.ToolWeightProfile) router.ToolWeights {
	weights := make(router.ToolWeights, len(profiles))
	for tool, w := range profiles {
		weights[tool] = router.Weights{
			Accuracy:    w.Accuracy,
			Latency:     w.Latency,
			Reliability: w.Reliability,
			Efficiency:  w.Efficiency,
		}
	}
	return weights
}

// defaultExperts returns the built-in static catalog of 8 experts: a
// balanced/speed/quality triad per tool-facing surface, plus two
// single-tool specialists that pick up the Specialization bonus (§4.6)
// on the tool they exist for.
func defaultExperts() []*router.Expert {
	return []*router.Expert{
		{
			ID:             "balanced-1",
			Type:           router.ExpertBalanced,
			Name:           "balanced-1",
			SupportedTools: map[string]struct{}{"recommend_skill": {}, "record_outcome": {}},
			AvgLatencyMs:   80,
			AccuracyScore:  0.85,
			Priority:       10,
		},
		{
			ID:             "speed-1",
			Type:           router.ExpertLatency,
			Name:           "speed-1",
			SupportedTools: map[string]struct{}{"recommend_skill": {}},
			AvgLatencyMs:   20,
			AccuracyScore:  0.7,
			Priority:       5,
		},
		{
			ID:             "quality-1",
			Type:           router.ExpertAccuracy,
			Name:           "quality-1",
			SupportedTools: map[string]struct{}{"recommend_skill": {}},
			AvgLatencyMs:   220,
			AccuracyScore:  0.97,
			Priority:       5,
		},
		{
			ID:             "balanced-2",
			Type:           router.ExpertBalanced,
			Name:           "balanced-2",
			SupportedTools: map[string]struct{}{"record_outcome": {}, "index_status": {}},
			AvgLatencyMs:   90,
			AccuracyScore:  0.82,
			Priority:       8,
		},
		{
			ID:             "speed-2",
			Type:           router.ExpertLatency,
			Name:           "speed-2",
			SupportedTools: map[string]struct{}{"record_outcome": {}},
			AvgLatencyMs:   15,
			AccuracyScore:  0.68,
			Priority:       5,
		},
		{
			ID:             "quality-2",
			Type:           router.ExpertAccuracy,
			Name:           "quality-2",
			SupportedTools: map[string]struct{}{"index_status": {}},
			AvgLatencyMs:   180,
			AccuracyScore:  0.95,
			Priority:       5,
		},
		{
			ID:             "specialized-code",
			Type:           router.ExpertSpecialized,
			Name:           "specialized-code",
			SupportedTools: map[string]struct{}{"recommend_skill": {}},
			AvgLatencyMs:   110,
			AccuracyScore:  0.93,
			Priority:       6,
		},
		{
			ID:             "specialized-ops",
			Type:           router.ExpertSpecialized,
			Name:           "specialized-ops",
			SupportedTools: map[string]struct{}{"record_outcome": {}},
			AvgLatencyMs:   100,
			AccuracyScore:  0.9,
			Priority:       6,
		},
	}
}

// formatDuration renders a duration the way status/doctor output wants it:
// whole seconds for anything over a second, milliseconds otherwise.
func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Millisecond).String()
}
