// Package pattern implements the Pattern Store: a vector-indexed,
// importance-weighted memory of (context, skill, outcome) tuples that
// learns continuously via an online Elastic Weight Consolidation (EWC++)
// approximation, without catastrophic forgetting of high-value memories.
package pattern

import "time"

// OutcomeType classifies how a recommendation resolved.
type OutcomeType string

const (
	OutcomeAccept      OutcomeType = "accept"
	OutcomeUsage       OutcomeType = "usage"
	OutcomeFrequent    OutcomeType = "frequent"
	OutcomeDismiss     OutcomeType = "dismiss"
	OutcomeAbandonment OutcomeType = "abandonment"
	OutcomeUninstall   OutcomeType = "uninstall"
)

// defaultRewards maps each outcome type to its fixed default reward.
var defaultRewards = map[OutcomeType]float64{
	OutcomeAccept:      1.0,
	OutcomeUsage:       0.3,
	OutcomeFrequent:    0.5,
	OutcomeDismiss:     -0.5,
	OutcomeAbandonment: -0.3,
	OutcomeUninstall:   -0.7,
}

// DefaultReward returns the fixed default reward for an outcome type.
// Unknown types default to 0.
func DefaultReward(o OutcomeType) float64 {
	return defaultRewards[o]
}

// Source identifies where a pattern's recommendation originated.
type Source string

const (
	SourceSearch    Source = "search"
	SourceRecommend Source = "recommend"
	SourceInstall   Source = "install"
	SourceCompare   Source = "compare"
)

// Outcome describes the result being recorded for a pattern.
type Outcome struct {
	Type       OutcomeType
	Reward     float64 // if zero, DefaultReward(Type) is used
	Confidence float64 // optional, 0 means "not provided"
}

// PatternInput is the caller-supplied data for store_pattern, prior to
// embedding and importance computation.
type PatternInput struct {
	ContextText    string // embedded to produce context_embedding
	SkillID        string
	Category       string
	TrustTier      string
	Tags           []string
	SkillFeatures  map[string]string
	ContextData    map[string]string
	OriginalScore  float64
	Source         Source
}

// Pattern is a recorded (context -> skill -> outcome) tuple. Pattern Store
// exclusively owns Patterns; callers only ever see read-only snapshots.
type Pattern struct {
	ID               string
	ContextEmbedding []float32
	SkillID          string
	SkillFeatures    map[string]string
	ContextData      map[string]string
	OutcomeType      OutcomeType
	OutcomeReward    float64
	Importance       float64
	OriginalScore    float64
	Source           Source
	AccessCount      int
	CreatedAt        time.Time
	LastAccessedAt   time.Time
}

// SimilarQuery filters candidates for find_similar_patterns.
type SimilarQuery struct {
	ContextText  string
	Limit        int
	SkillID      string // optional
	Category     string // optional
	MinImportance float64
	OutcomeType  OutcomeType // optional
	PositiveOnly bool
}

// SimilarResult is one ranked match from find_similar_patterns.
type SimilarResult struct {
	Pattern            *Pattern
	Similarity         float64
	WeightedSimilarity float64
	Rank               int
}

// ConsolidationResult summarizes one consolidate() run.
type ConsolidationResult struct {
	Processed        int
	Preserved        int
	Pruned           int
	PreservationRate float64
	Duration         time.Duration
	AvgImportance    float64
}

// ConsolidationRecord is a persisted history row (SUPPLEMENTED FEATURES:
// read-only observability over consolidation_history).
type ConsolidationRecord struct {
	ID                int64
	Timestamp         time.Time
	PatternsProcessed int
	PatternsPreserved int
	PatternsPruned    int
	PreservationRate  float64
	DurationMs        int64
	AverageImportance float64
}
