package mcp

// RecommendSkillInput defines the input schema for the recommend_skill tool.
type RecommendSkillInput struct {
	ContextText   string  `json:"context_text" jsonschema:"the caller's current context, embedded and matched against stored patterns"`
	Tool          string  `json:"tool,omitempty" jsonschema:"the MCP tool the caller is about to invoke, used for SONA expert routing"`
	SkillID       string  `json:"skill_id,omitempty" jsonschema:"restrict candidates to one skill id"`
	Category      string  `json:"category,omitempty" jsonschema:"restrict candidates to one skill category"`
	Limit         int     `json:"limit,omitempty" jsonschema:"maximum number of recommendations, default 10"`
	MinImportance float64 `json:"min_importance,omitempty" jsonschema:"drop candidates below this Fisher-weighted importance"`
	PositiveOnly  bool    `json:"positive_only,omitempty" jsonschema:"only consider patterns with a positive outcome reward"`
	HighPriority  bool    `json:"high_priority,omitempty" jsonschema:"bypass the routing decision cache for this call"`
}

// RecommendSkillOutput defines the output schema for the recommend_skill tool.
type RecommendSkillOutput struct {
	Recommendations []SkillRecommendation `json:"recommendations"`
	Routing         *RoutingInfo          `json:"routing,omitempty"`
}

// SkillRecommendation is one ranked find_similar_patterns match.
type SkillRecommendation struct {
	PatternID          string            `json:"pattern_id"`
	SkillID            string            `json:"skill_id"`
	SkillFeatures      map[string]string `json:"skill_features,omitempty"`
	OutcomeType        string            `json:"outcome_type"`
	Importance         float64           `json:"importance"`
	Similarity         float64           `json:"similarity"`
	WeightedSimilarity float64           `json:"weighted_similarity"`
	Rank               int               `json:"rank"`
}

// RoutingInfo surfaces the SONA Router's decision for the request that
// produced this recommendation, when a tool name was supplied.
type RoutingInfo struct {
	ExpertID     string   `json:"expert_id"`
	Confidence   float64  `json:"confidence"`
	Reason       string   `json:"reason"`
	CacheHit     bool     `json:"cache_hit"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// RecordOutcomeInput defines the input schema for the record_outcome tool.
type RecordOutcomeInput struct {
	ContextText   string            `json:"context_text" jsonschema:"the context the recommendation was made in"`
	SkillID       string            `json:"skill_id" jsonschema:"the skill the outcome is being recorded for"`
	Category      string            `json:"category,omitempty"`
	TrustTier     string            `json:"trust_tier,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	SkillFeatures map[string]string `json:"skill_features,omitempty"`
	ContextData   map[string]string `json:"context_data,omitempty"`
	OriginalScore float64           `json:"original_score,omitempty" jsonschema:"the score the recommendation carried before this outcome"`
	Source        string            `json:"source,omitempty" jsonschema:"search, recommend, install, or compare"`
	OutcomeType   string            `json:"outcome_type" jsonschema:"accept, usage, frequent, dismiss, abandonment, or uninstall"`
	Reward        float64           `json:"reward,omitempty" jsonschema:"override the outcome type's default reward"`
	Confidence    float64           `json:"confidence,omitempty"`
}

// RecordOutcomeOutput defines the output schema for the record_outcome tool.
type RecordOutcomeOutput struct {
	PatternID string `json:"pattern_id"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Patterns      PatternStoreStats      `json:"patterns"`
	Router        RouterStats            `json:"router"`
	Consolidation *ConsolidationSummary  `json:"consolidation,omitempty"`
	Indexing      *SwarmIndexingProgress `json:"indexing,omitempty"` // present while a swarm index_all run is active and after one has completed
}

// PatternStoreStats summarizes the Pattern Store's current content.
type PatternStoreStats struct {
	PatternCount       int     `json:"pattern_count"`
	AverageImportance  float64 `json:"average_importance"`
	LastConsolidatedAt string  `json:"last_consolidated_at,omitempty"`
}

// RouterStats summarizes the SONA Router's expert registry.
type RouterStats struct {
	ExpertCount    int      `json:"expert_count"`
	HealthyExperts []string `json:"healthy_experts"`
	DegradedExpert []string `json:"degraded_experts"`
	CacheSize      int      `json:"cache_size"`
}

// ConsolidationSummary reports on the most recent consolidate() runs.
type ConsolidationSummary struct {
	RunCount            int     `json:"run_count"`
	AveragePreservation float64 `json:"average_preservation"`
	LowestPreservation  float64 `json:"lowest_preservation"`
	BelowThresholdCount int     `json:"below_threshold_count"`
}

// SwarmIndexingProgress reports on an in-flight or most recent swarm
// index_all() run.
type SwarmIndexingProgress struct {
	Status            string   `json:"status"` // "running", "completed", or "failed"
	WorkersTotal      int      `json:"workers_total"`
	WorkersCompleted  int      `json:"workers_completed"`
	WorkersFailed     int      `json:"workers_failed"`
	RepositoriesFound int      `json:"repositories_found"`
	RepositoriesIndex int      `json:"repositories_indexed"`
	Errors            []string `json:"errors,omitempty"`
	ElapsedSeconds    float64  `json:"elapsed_seconds"`
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
