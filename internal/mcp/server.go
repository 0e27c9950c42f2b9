package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/skillmind/skillmind/internal/config"
	"github.com/skillmind/skillmind/internal/embed"
	"github.com/skillmind/skillmind/internal/pattern"
	"github.com/skillmind/skillmind/internal/router"
	"github.com/skillmind/skillmind/internal/swarm"
	"github.com/skillmind/skillmind/internal/telemetry"
	"github.com/skillmind/skillmind/pkg/version"
)

// Server is the MCP server for skillmind. It bridges AI clients (Claude
// Code, Cursor) with the Pattern Store and SONA Router.
type Server struct {
	mcp      *mcp.Server
	store    *pattern.Store
	router   *router.Router
	embedder embed.Embedder
	config   *config.Config
	logger   *slog.Logger

	// Query telemetry (optional, set via SetMetrics).
	metrics *telemetry.QueryMetrics

	// Swarm indexer wiring (optional, set via SetIndexer). The server
	// never drives index_all itself - it only observes progress and the
	// most recent result for index_status.
	indexer         *swarm.Indexer
	swarmProgress   *swarm.ProgressSnapshot
	swarmResult     *swarm.Result
	swarmInProgress bool

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// ResourceInfo contains information about a resource.
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// NewServer creates a new MCP server over a Pattern Store and SONA
// Router. embedder is used for capability signaling so AI clients can
// tell whether high-quality semantic matching is active.
func NewServer(store *pattern.Store, rt *router.Router, embedder embed.Embedder, cfg *config.Config) (*Server, error) {
	if store == nil {
		return nil, errors.New("pattern store is required")
	}
	if rt == nil {
		return nil, errors.New("router is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		store:    store,
		router:   rt,
		embedder: embedder, // may be nil - reported as unavailable
		config:   cfg,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "skillmind",
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	s.registerTools()

	return s, nil
}

// SetMetrics sets the query telemetry collector. When set, a
// query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// SetIndexer wires a Swarm Indexer so index_status can report live
// progress. The server only observes - index_all is still driven by the
// caller (the `index` CLI command or a scheduled job).
func (s *Server) SetIndexer(ix *swarm.Indexer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexer = ix
	if ix == nil {
		return
	}
	ix.OnProgress(func(p swarm.ProgressSnapshot) {
		s.mu.Lock()
		defer s.mu.Unlock()
		snap := p
		s.swarmProgress = &snap
		s.swarmInProgress = p.Running > 0 || (p.Completed+p.Failed) < p.Total
	})
}

// RecordIndexResult stores the outcome of a completed index_all() run
// for index_status to report.
func (s *Server) RecordIndexResult(result *swarm.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swarmResult = result
	s.swarmInProgress = false
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "skillmind", version.Version
}

// Capabilities returns whether tools and resources are enabled.
func (s *Server) Capabilities() (hasTools, hasResources bool) {
	return true, true
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "recommend_skill",
			Description: "Find skills similar to the caller's current context, ranked by importance-weighted embedding similarity. Optionally routes the call through the SONA Router when a tool name is supplied.",
		},
		{
			Name:        "record_outcome",
			Description: "Record how a recommended skill's outcome resolved (accepted, used, dismissed, abandoned, uninstalled). Feeds the Pattern Store's EWC++ importance weighting.",
		},
		{
			Name:        "index_status",
			Description: "Check Pattern Store, SONA Router, and Swarm Indexer health: pattern count, expert status, decision cache size, and the most recent index_all() run.",
		},
	}
}

// CallTool invokes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "recommend_skill":
		return s.handleRecommendSkillTool(ctx, args)
	case "record_outcome":
		return s.handleRecordOutcomeTool(ctx, args)
	case "index_status":
		return s.buildIndexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// handleRecommendSkillTool handles the recommend_skill tool invocation
// from the untyped CallTool path (used by transports that don't go
// through the MCP SDK's typed handler).
func (s *Server) handleRecommendSkillTool(ctx context.Context, args map[string]any) (*RecommendSkillOutput, error) {
	input := RecommendSkillInput{}
	if q, ok := args["context_text"].(string); ok {
		input.ContextText = q
	}
	if tool, ok := args["tool"].(string); ok {
		input.Tool = tool
	}
	if id, ok := args["skill_id"].(string); ok {
		input.SkillID = id
	}
	if cat, ok := args["category"].(string); ok {
		input.Category = cat
	}
	if l, ok := args["limit"].(float64); ok {
		input.Limit = int(l)
	}
	if mi, ok := args["min_importance"].(float64); ok {
		input.MinImportance = mi
	}
	if po, ok := args["positive_only"].(bool); ok {
		input.PositiveOnly = po
	}

	return s.recommendSkill(ctx, input)
}

// handleRecordOutcomeTool handles the record_outcome tool invocation
// from the untyped CallTool path.
func (s *Server) handleRecordOutcomeTool(ctx context.Context, args map[string]any) (*RecordOutcomeOutput, error) {
	input := RecordOutcomeInput{}
	if v, ok := args["context_text"].(string); ok {
		input.ContextText = v
	}
	if v, ok := args["skill_id"].(string); ok {
		input.SkillID = v
	}
	if v, ok := args["category"].(string); ok {
		input.Category = v
	}
	if v, ok := args["outcome_type"].(string); ok {
		input.OutcomeType = v
	}
	if v, ok := args["source"].(string); ok {
		input.Source = v
	}

	return s.recordOutcome(ctx, input)
}

// recommendSkill implements the recommend_skill tool: find_similar_patterns
// against the Pattern Store, optionally preceded by a SONA Router decision
// when a tool name is supplied.
func (s *Server) recommendSkill(ctx context.Context, input RecommendSkillInput) (*RecommendSkillOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.ContextText) == "" {
		return nil, NewInvalidParamsError("context_text is required and must be a non-empty string")
	}

	s.logger.Info("recommend_skill started",
		slog.String("request_id", requestID),
		slog.String("skill_id", input.SkillID))

	output := &RecommendSkillOutput{}

	if input.Tool != "" {
		priority := router.PriorityNormal
		if input.HighPriority {
			priority = router.PriorityHigh
		}
		decision := s.router.Route(ctx, router.Request{
			Tool:     input.Tool,
			Priority: priority,
		})
		alternatives := make([]string, 0, len(decision.Alternatives))
		for _, a := range decision.Alternatives {
			alternatives = append(alternatives, a.ExpertID)
		}
		output.Routing = &RoutingInfo{
			ExpertID:     decision.ExpertID,
			Confidence:   decision.Confidence,
			Reason:       decision.Reason,
			CacheHit:     decision.CacheHit,
			Alternatives: alternatives,
		}
	}

	results, err := s.store.FindSimilarPatterns(ctx, pattern.SimilarQuery{
		ContextText:   input.ContextText,
		Limit:         clampLimit(input.Limit, 10, 1, 50),
		SkillID:       input.SkillID,
		Category:      input.Category,
		MinImportance: input.MinImportance,
		PositiveOnly:  input.PositiveOnly,
	})
	duration := time.Since(start)

	if s.metrics != nil {
		s.metrics.Record(telemetry.QueryEvent{
			Query:       input.ContextText,
			QueryType:   telemetry.QueryTypeSemantic,
			ResultCount: len(results),
			Latency:     duration,
			Timestamp:   time.Now(),
		})
	}

	if err != nil {
		s.logger.Error("recommend_skill failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	output.Recommendations = make([]SkillRecommendation, 0, len(results))
	for _, r := range results {
		output.Recommendations = append(output.Recommendations, SkillRecommendation{
			PatternID:          r.Pattern.ID,
			SkillID:            r.Pattern.SkillID,
			SkillFeatures:      r.Pattern.SkillFeatures,
			OutcomeType:        string(r.Pattern.OutcomeType),
			Importance:         r.Pattern.Importance,
			Similarity:         r.Similarity,
			WeightedSimilarity: r.WeightedSimilarity,
			Rank:               r.Rank,
		})
	}

	s.logger.Info("recommend_skill completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	return output, nil
}

// recordOutcome implements the record_outcome tool: store_pattern against
// the Pattern Store.
func (s *Server) recordOutcome(ctx context.Context, input RecordOutcomeInput) (*RecordOutcomeOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.SkillID) == "" {
		return nil, NewInvalidParamsError("skill_id is required")
	}
	if strings.TrimSpace(input.OutcomeType) == "" {
		return nil, NewInvalidParamsError("outcome_type is required")
	}

	s.logger.Info("record_outcome started",
		slog.String("request_id", requestID),
		slog.String("skill_id", input.SkillID),
		slog.String("outcome_type", input.OutcomeType))

	id, err := s.store.StorePattern(ctx, pattern.PatternInput{
		ContextText:   input.ContextText,
		SkillID:       input.SkillID,
		Category:      input.Category,
		TrustTier:     input.TrustTier,
		Tags:          input.Tags,
		SkillFeatures: input.SkillFeatures,
		ContextData:   input.ContextData,
		OriginalScore: input.OriginalScore,
		Source:        pattern.Source(defaultString(input.Source, string(pattern.SourceRecommend))),
	}, pattern.Outcome{
		Type:       pattern.OutcomeType(input.OutcomeType),
		Reward:     input.Reward,
		Confidence: input.Confidence,
	})
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("record_outcome failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("record_outcome completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.String("pattern_id", id))

	return &RecordOutcomeOutput{PatternID: id}, nil
}

// buildIndexStatus implements the index_status tool: Pattern Store
// stats, Router expert health, consolidation history, and Swarm Indexer
// progress.
func (s *Server) buildIndexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info("index_status started", slog.String("request_id", requestID))

	storeStats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	output := &IndexStatusOutput{
		Patterns: PatternStoreStats{
			PatternCount:      storeStats.PatternCount,
			AverageImportance: storeStats.AverageImportance,
		},
	}
	if !storeStats.LastConsolidation.IsZero() {
		output.Patterns.LastConsolidatedAt = storeStats.LastConsolidation.Format(time.RFC3339)
	}

	reg := s.router.Registry()
	all := reg.All()
	var healthy, degraded []string
	for _, es := range all {
		switch es.Status.State {
		case router.StateHealthy, router.StateWarmingUp:
			healthy = append(healthy, es.Expert.ID)
		default:
			degraded = append(degraded, es.Expert.ID)
		}
	}
	output.Router = RouterStats{
		ExpertCount:    len(all),
		HealthyExperts: healthy,
		DegradedExpert: degraded,
		CacheSize:      s.router.CacheSize(),
	}

	snap, err := telemetry.CollectConsolidationSnapshot(ctx, s.store, 10, s.config.PatternStore.ConsolidationThreshold)
	if err != nil {
		s.logger.Warn("consolidation history unavailable",
			slog.String("request_id", requestID), slog.String("error", err.Error()))
	} else if len(snap.Runs) > 0 {
		output.Consolidation = &ConsolidationSummary{
			RunCount:            len(snap.Runs),
			AveragePreservation: snap.AveragePreservation,
			LowestPreservation:  snap.LowestPreservation,
			BelowThresholdCount: snap.BelowThresholdCount,
		}
	}

	output.Indexing = s.swarmIndexingProgress()

	duration := time.Since(start)
	s.logger.Info("index_status completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("pattern_count", output.Patterns.PatternCount))

	return output, nil
}

// swarmIndexingProgress builds the Indexing field from live progress (if
// a run is in flight) or the most recent completed result.
func (s *Server) swarmIndexingProgress() *SwarmIndexingProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.swarmInProgress && s.swarmProgress != nil {
		p := s.swarmProgress
		return &SwarmIndexingProgress{
			Status:            "running",
			WorkersTotal:      p.Total,
			WorkersCompleted:  p.Completed,
			WorkersFailed:     p.Failed,
			RepositoriesFound: p.TotalRepositories,
			RepositoriesIndex: p.IndexedRepositories,
		}
	}

	if s.swarmResult == nil {
		return nil
	}

	status := "completed"
	if s.swarmResult.Aggregate.Failed > 0 {
		status = "failed"
	}
	return &SwarmIndexingProgress{
		Status:            status,
		WorkersTotal:      len(s.swarmResult.Partitions),
		WorkersCompleted:  len(s.swarmResult.Workers),
		WorkersFailed:     s.swarmResult.Aggregate.Failed,
		RepositoriesFound: s.swarmResult.Aggregate.Found,
		RepositoriesIndex: s.swarmResult.Aggregate.Indexed,
		Errors:            s.swarmResult.Aggregate.Errors,
		ElapsedSeconds:    s.swarmResult.Duration.Seconds(),
	}
}

// defaultString returns v if non-empty, else fallback.
func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "recommend_skill",
		Description: "Find skills similar to the caller's current context, ranked by importance-weighted embedding similarity. Optionally routes the call through the SONA Router when a tool name is supplied.",
	}, s.mcpRecommendSkillHandler)
	s.logger.Debug("registered tool", slog.String("name", "recommend_skill"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "record_outcome",
		Description: "Record how a recommended skill's outcome resolved (accepted, used, dismissed, abandoned, uninstalled). Feeds the Pattern Store's EWC++ importance weighting.",
	}, s.mcpRecordOutcomeHandler)
	s.logger.Debug("registered tool", slog.String("name", "record_outcome"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Check Pattern Store, SONA Router, and Swarm Indexer health: pattern count, expert status, decision cache size, and the most recent index_all() run.",
	}, s.mcpIndexStatusHandler)
	s.logger.Debug("registered tool", slog.String("name", "index_status"))

	s.logger.Info("MCP tools registered", slog.Int("count", 3))
}

// mcpRecommendSkillHandler is the MCP SDK handler for the recommend_skill tool.
func (s *Server) mcpRecommendSkillHandler(ctx context.Context, _ *mcp.CallToolRequest, input RecommendSkillInput) (
	*mcp.CallToolResult,
	RecommendSkillOutput,
	error,
) {
	output, err := s.recommendSkill(ctx, input)
	if err != nil {
		return nil, RecommendSkillOutput{}, MapError(err)
	}
	return nil, *output, nil
}

// mcpRecordOutcomeHandler is the MCP SDK handler for the record_outcome tool.
func (s *Server) mcpRecordOutcomeHandler(ctx context.Context, _ *mcp.CallToolRequest, input RecordOutcomeInput) (
	*mcp.CallToolResult,
	RecordOutcomeOutput,
	error,
) {
	output, err := s.recordOutcome(ctx, input)
	if err != nil {
		return nil, RecordOutcomeOutput{}, MapError(err)
	}
	return nil, *output, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.buildIndexStatus(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, output, nil
}

// ListResources returns all available resources. skillmind exposes
// telemetry, not a file corpus, so resources are limited to
// query_metrics (when set via SetMetrics).
func (s *Server) ListResources(ctx context.Context, cursor string) ([]ResourceInfo, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.metrics == nil {
		return nil, "", nil
	}
	return []ResourceInfo{
		{URI: queryMetricsURI, Name: "query_metrics", MIMEType: "application/json"},
	}, "", nil
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	if uri != queryMetricsURI {
		return nil, NewResourceNotFoundError(uri)
	}

	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics == nil {
		return nil, NewResourceNotFoundError(uri)
	}

	content, err := json.MarshalIndent(toQueryMetricsOutput(metrics.Snapshot()), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &ResourceContent{URI: uri, Content: string(content), MIMEType: "application/json"}, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		s.logger.Debug("using stdio transport for JSON-RPC")
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	case "sse":
		return fmt.Errorf("SSE transport not yet implemented")
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	return s.store.Close()
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
