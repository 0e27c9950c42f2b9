package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	skillerrors "github.com/skillmind/skillmind/internal/errors"
)

// ToolWeights maps a tool name to its scoring profile. A "default" entry
// is consulted for tools without a specific profile.
type ToolWeights map[string]Weights

// Config holds the router's tuning knobs, mirroring internal/config's
// RouterConfig so the router package does not need to import it.
type Config struct {
	ToolWeights         ToolWeights
	CachingEnabled       bool
	FallbackEnabled      bool
	MinConfidenceMargin  float64
	CircuitMaxFailures   int
	CircuitResetTimeout  time.Duration
}

// Executor invokes a chosen expert against a request. Synchronous from
// the caller's perspective (§6).
type Executor func(ctx context.Context, expertID string, req Request) (any, error)

// Router is the SONA mixture-of-experts router.
type Router struct {
	mu       sync.Mutex
	registry *Registry
	cache    *DecisionCache
	cfg      Config
	logger   *slog.Logger
	breakers map[string]*skillerrors.CircuitBreaker
}

// New creates a SONA Router over registry with the given cache and config.
func New(registry *Registry, cache *DecisionCache, cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*skillerrors.CircuitBreaker),
	}
}

// Registry returns the router's expert registry, for observability
// surfaces that need to enumerate experts and their health.
func (r *Router) Registry() *Registry {
	return r.registry
}

// CacheSize reports the number of decisions currently held in the
// router's decision cache.
func (r *Router) CacheSize() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Len()
}

// UpdateToolWeights swaps in a new tool-weight profile, for config
// hot-reload. It purges the decision cache since cached Decisions were
// scored under the previous weights.
func (r *Router) UpdateToolWeights(tw ToolWeights) {
	r.mu.Lock()
	r.cfg.ToolWeights = tw
	r.mu.Unlock()

	if r.cache != nil {
		r.cache.Purge()
	}
}

func (r *Router) breakerFor(expertID string) *skillerrors.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[expertID]
	if !ok {
		cb = skillerrors.NewCircuitBreaker(expertID,
			skillerrors.WithMaxFailures(r.cfg.CircuitMaxFailures),
			skillerrors.WithResetTimeout(r.cfg.CircuitResetTimeout))
		r.breakers[expertID] = cb
	}
	return cb
}

// hashArguments produces a deterministic key for the decision cache.
// encoding/json sorts map keys during marshal, so this is stable across
// calls within a process.
func hashArguments(tool string, args map[string]any) string {
	b, _ := json.Marshal(args)
	sum := sha256.Sum256(append([]byte(tool+"\x00"), b...))
	return hex.EncodeToString(sum[:])
}

// Route implements §4.6 route(): cache lookup, eligibility filter,
// weighted scoring, selection, and cache population.
func (r *Router) Route(ctx context.Context, req Request) Decision {
	start := time.Now()
	key := hashArguments(req.Tool, req.Arguments)

	if r.cfg.CachingEnabled && req.Priority != PriorityHigh {
		if cached, ok := r.cache.Get(key); ok {
			cached.CacheHit = true
			return cached
		}
	}

	eligible := r.registry.EligibleFor(req.Tool)
	if len(eligible) == 0 {
		decision := Decision{
			ExpertID:     DirectFallbackID,
			Confidence:   1.0,
			Reason:       "Fallback: NO_ELIGIBLE_EXPERTS",
			Scores:       Scores{ReliabilityScore: 1.0, Total: 1.0},
			DecisionTime: time.Since(start),
		}
		if r.cfg.CachingEnabled {
			r.cache.Set(key, decision)
		}
		return decision
	}

	weights := r.weightsFor(req.Tool)

	type scored struct {
		expert *Expert
		scores Scores
	}
	results := make([]scored, 0, len(eligible))
	for _, e := range eligible {
		st, _ := r.registry.Status(e.ID)
		results = append(results, scored{expert: e, scores: r.score(e, st, req, weights)})
	}

	best := results[0]
	for _, cand := range results[1:] {
		if cand.scores.Total > best.scores.Total {
			best = cand
		}
	}

	var runnerUp float64
	haveRunnerUp := false
	alternatives := make([]Alternative, 0, len(results)-1)
	for _, cand := range results {
		if cand.expert.ID == best.expert.ID {
			continue
		}
		alternatives = append(alternatives, Alternative{ExpertID: cand.expert.ID, Total: cand.scores.Total})
		if !haveRunnerUp || cand.scores.Total > runnerUp {
			runnerUp = cand.scores.Total
			haveRunnerUp = true
		}
	}

	confidence := 1.0
	if haveRunnerUp {
		margin := best.scores.Total - runnerUp
		confidence = min1(0.5 + 2*margin)
	}

	decision := Decision{
		ExpertID:     best.expert.ID,
		Confidence:   confidence,
		Reason:       "scored selection",
		Scores:       best.scores,
		Alternatives: alternatives,
		DecisionTime: time.Since(start),
	}

	if r.cfg.CachingEnabled {
		r.cache.Set(key, decision)
	}
	return decision
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

func (r *Router) weightsFor(tool string) Weights {
	if w, ok := r.cfg.ToolWeights[tool]; ok {
		return w
	}
	if w, ok := r.cfg.ToolWeights["default"]; ok {
		return w
	}
	return Weights{Accuracy: 0.25, Latency: 0.25, Reliability: 0.25, Efficiency: 0.25}
}

// score implements §4.6 step 3: per-dimension scores, weighted total,
// specialization bonus, and priority tiebreaker.
func (r *Router) score(e *Expert, st Status, req Request, w Weights) Scores {
	accuracy := e.AccuracyScore * (1 - 0.1*st.Load)

	latency := 1 - e.AvgLatencyMs/200
	if latency < 0 {
		latency = 0
	}
	if req.MaxLatencyMs > 0 && e.AvgLatencyMs > req.MaxLatencyMs {
		latency *= 0.5
	}

	reliability := st.SuccessRate
	efficiency := 1 - st.Load

	total := w.Accuracy*accuracy + w.Latency*latency + w.Reliability*reliability + w.Efficiency*efficiency

	if e.Type == ExpertSpecialized && len(e.SupportedTools) == 1 {
		total *= 1.1
	}
	total += float64(e.Priority) / 10000

	return Scores{
		AccuracyScore:    accuracy,
		LatencyScore:     latency,
		ReliabilityScore: reliability,
		EfficiencyScore:  efficiency,
		Total:            total,
	}
}

// ExecuteWithRouting implements §4.6's execute_with_routing: route, invoke
// executor, update expert EMA, and fall back once on failure.
func (r *Router) ExecuteWithRouting(ctx context.Context, req Request, executor Executor) ExecutionResult {
	start := time.Now()
	decision := r.Route(ctx, req)

	result, err := r.executeThroughBreaker(ctx, decision.ExpertID, req, executor)
	if err == nil {
		if decision.ExpertID != DirectFallbackID {
			r.registry.RecordSuccess(decision.ExpertID)
		}
		return ExecutionResult{Decision: decision, Result: result, Duration: time.Since(start)}
	}

	if decision.ExpertID != DirectFallbackID {
		r.registry.RecordFailure(decision.ExpertID)
	}

	if !r.cfg.FallbackEnabled || decision.ExpertID == DirectFallbackID {
		return ExecutionResult{Decision: decision, Err: err, Duration: time.Since(start)}
	}

	fallbackResult, fallbackErr := r.executeThroughBreaker(ctx, DirectFallbackID, req, executor)
	if fallbackErr != nil {
		return ExecutionResult{
			Decision:     decision,
			Err:          fallbackErr,
			UsedFallback: true,
			Duration:     time.Since(start),
		}
	}
	return ExecutionResult{
		Decision:     decision,
		Result:       fallbackResult,
		UsedFallback: true,
		Duration:     time.Since(start),
	}
}

func (r *Router) executeThroughBreaker(ctx context.Context, expertID string, req Request, executor Executor) (any, error) {
	cb := r.breakerFor(expertID)
	return skillerrors.CircuitExecuteWithResult(cb,
		func() (any, error) { return executor(ctx, expertID, req) },
		func() (any, error) { return nil, skillerrors.ErrCircuitOpen })
}
