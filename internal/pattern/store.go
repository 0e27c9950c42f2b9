package pattern

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"

	"github.com/skillmind/skillmind/internal/embed"
	skillerrors "github.com/skillmind/skillmind/internal/errors"
)

// Config holds the tuning knobs the Pattern Store needs. It mirrors
// internal/config's PatternStoreConfig so callers can pass that struct
// directly without the pattern package importing internal/config.
type Config struct {
	MaxPatterns            int
	ImportanceThreshold    float64
	ConsolidationThreshold float64
	FisherDecay            float64
	FisherSampleSize       int
	AutoConsolidate        bool
	AccessTracking         bool
}

// Store is the persistent, importance-weighted memory of
// (context, skill, outcome) tuples. It owns all Patterns exclusively;
// callers only ever see read-only snapshots.
type Store struct {
	mu sync.Mutex

	db       *sql.DB
	embedder embed.Embedder
	fisher   *FisherMatrix
	cfg      Config
	logger   *slog.Logger
	dim      int
	vindex   *vectorIndex

	sinceConsolidation int
	lastConsolidation  time.Time
	latencies          []time.Duration // rolling window, capped at 100
}

// New opens (or creates) a Pattern Store backed by a SQLite database at
// path. If path is empty, an in-memory store is created (tests only).
func New(ctx context.Context, path string, embedder embed.Embedder, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating pattern store directory: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening pattern store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		dim:      embedder.Dimensions(),
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := s.loadFisher(ctx); err != nil {
		// CorruptMatrix is recoverable: loadFisher already reset the
		// in-memory matrix, we only log and continue.
		s.logger.Warn("fisher_matrix_reset_on_load", slog.String("error", err.Error()))
	}

	s.vindex = newVectorIndex(s.dim)
	if err := s.seedVectorIndex(ctx); err != nil {
		s.logger.Warn("vector_index_seed_failed", slog.String("error", err.Error()))
	}

	return s, nil
}

// seedVectorIndex loads every stored pattern into the in-memory HNSW
// accelerator. SQLite is the source of truth; this rebuild makes the
// accelerator consistent with it on every open.
func (s *Store) seedVectorIndex(ctx context.Context) error {
	all, err := s.allPatterns(ctx)
	if err != nil {
		return err
	}
	for _, p := range all {
		s.vindex.add(p.ID, p.ContextEmbedding)
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		pattern_id TEXT PRIMARY KEY,
		context_embedding BLOB,
		skill_id TEXT,
		skill_features TEXT,
		context_data TEXT,
		outcome_type TEXT,
		outcome_reward REAL,
		importance REAL,
		original_score REAL,
		source TEXT,
		access_count INTEGER,
		created_at INTEGER,
		last_accessed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_skill_id ON patterns(skill_id);
	CREATE INDEX IF NOT EXISTS idx_patterns_outcome_type ON patterns(outcome_type);
	CREATE INDEX IF NOT EXISTS idx_patterns_importance ON patterns(importance DESC);
	CREATE INDEX IF NOT EXISTS idx_patterns_created_at ON patterns(created_at DESC);

	CREATE TABLE IF NOT EXISTS fisher_info (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		matrix_data BLOB,
		update_count INTEGER,
		last_decay_at INTEGER,
		updated_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS consolidation_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER,
		patterns_processed INTEGER,
		patterns_preserved INTEGER,
		patterns_pruned INTEGER,
		preservation_rate REAL,
		duration_ms INTEGER,
		average_importance REAL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("initializing pattern store schema: %w", err)
	}
	return nil
}

// loadFisher reads the singleton fisher_info row, if any. A corrupt or
// mis-sized buffer resets the matrix and is treated as a warning, never a
// fatal error (§7: corrupt persisted state is reset and continued).
func (s *Store) loadFisher(ctx context.Context) error {
	s.fisher = NewFisherMatrix(s.dim)

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT matrix_data FROM fisher_info WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading fisher_info: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return s.fisher.Deserialize(data)
}

// persistFisher writes the current Fisher matrix to its singleton row.
func (s *Store) persistFisher(ctx context.Context) error {
	data := s.fisher.Serialize()
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fisher_info (id, matrix_data, update_count, last_decay_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			matrix_data = excluded.matrix_data,
			update_count = excluded.update_count,
			updated_at = excluded.updated_at
	`, data, s.fisher.UpdateCount(), now, now)
	if err != nil {
		return skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "persisting fisher matrix", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying SQLite handle so collaborators that persist
// alongside pattern data (telemetry's query metrics store, in
// particular) can share the same database file instead of opening a
// second one.
func (s *Store) DB() *sql.DB {
	return s.db
}

// StoreStats summarizes the Pattern Store's current content, for
// observability surfaces (CLI `status`, MCP `index_status`).
type StoreStats struct {
	PatternCount      int
	AverageImportance float64
	LastConsolidation time.Time
}

// Stats reports the current pattern count and average importance.
func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, err := s.countPatterns(ctx)
	if err != nil {
		return StoreStats{}, err
	}

	stats := StoreStats{PatternCount: count, LastConsolidation: s.lastConsolidation}
	if count == 0 {
		return stats, nil
	}

	var avg sql.NullFloat64
	row := s.db.QueryRowContext(ctx, `SELECT AVG(importance) FROM patterns`)
	if err := row.Scan(&avg); err != nil {
		return StoreStats{}, fmt.Errorf("averaging pattern importance: %w", err)
	}
	stats.AverageImportance = avg.Float64
	return stats, nil
}

// StorePattern embeds the input's context, deduplicates against near
// identical patterns for the same skill, and otherwise inserts a new
// pattern. Returns the stored (or updated) pattern's id.
func (s *Store) StorePattern(ctx context.Context, input PatternInput, outcome Outcome) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.embedder.Embed(ctx, input.ContextText)
	if err != nil {
		return "", skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "embedding pattern context", err)
	}

	reward := outcome.Reward
	if reward == 0 {
		reward = DefaultReward(outcome.Type)
	}

	// Step 2: top-5 similar patterns restricted to the same skill_id, not
	// filtered by outcome sign.
	candidates, err := s.loadCandidates(ctx, input.SkillID, "", 0, "", false)
	if err != nil {
		return "", err
	}
	top := rankBySimilarity(q, candidates, s.fisher.ImportanceVector(), 5)

	if len(top) > 0 && top[0].Similarity > 0.95 {
		existing := top[0].Pattern
		gradient := subtract(q, existing.ContextEmbedding)
		s.fisher.Update(gradient)
		existing.AccessCount++
		existing.Importance = calculateDimensionImportance(existing, s.fisher.ImportanceVector(), s.cfg)
		existing.LastAccessedAt = time.Now()
		if err := s.updatePatternRow(ctx, existing); err != nil {
			return "", err
		}
		if err := s.afterMutation(ctx); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	confidence := outcome.Confidence
	if confidence == 0 {
		confidence = 1.0
	}
	multiplier := 1.0
	if reward > 0 {
		multiplier = 1.5
	}
	importance := math.Abs(reward) * multiplier * confidence * s.cfg.ImportanceThreshold * 10

	p := &Pattern{
		ID:               uuid.NewString(),
		ContextEmbedding: q,
		SkillID:          input.SkillID,
		SkillFeatures:    mergeFeatureMap(input.SkillFeatures, input.Category, input.TrustTier, input.Tags),
		ContextData:      input.ContextData,
		OutcomeType:      outcome.Type,
		OutcomeReward:    reward,
		Importance:       importance,
		OriginalScore:    input.OriginalScore,
		Source:           input.Source,
		AccessCount:      0,
		CreatedAt:        time.Now(),
		LastAccessedAt:   time.Now(),
	}
	if err := s.insertPatternRow(ctx, p); err != nil {
		return "", err
	}
	s.vindex.add(p.ID, p.ContextEmbedding)

	avg, err := s.averageEmbedding(ctx, 100)
	if err != nil {
		return "", err
	}
	gradient := subtract(q, avg)
	s.fisher.Update(gradient)

	if err := s.afterMutation(ctx); err != nil {
		return "", err
	}
	return p.ID, nil
}

// afterMutation bumps the consolidation counter, runs consolidate() when
// due and auto-consolidation is enabled, and persists the Fisher matrix.
// Caller must hold s.mu.
func (s *Store) afterMutation(ctx context.Context) error {
	s.sinceConsolidation++
	if s.cfg.AutoConsolidate {
		if due, err := s.shouldConsolidateLocked(ctx); err == nil && due {
			if _, err := s.consolidateLocked(ctx); err != nil {
				return err
			}
		}
	}
	return s.persistFisher(ctx)
}

// calculateDimensionImportance implements the §4.3 consolidate() step 4
// formula, reused both at dedup-update time and at consolidation time.
func calculateDimensionImportance(p *Pattern, importance []float32, cfg Config) float64 {
	base := math.Abs(p.OutcomeReward)
	if p.OutcomeReward > 0 {
		base *= 1.5
	}

	ageDays := time.Since(p.CreatedAt).Hours() / 24
	recency := math.Exp(-ageDays / 30)
	accessFactor := 1 + math.Log(1+float64(p.AccessCount))

	n := len(p.ContextEmbedding)
	if len(importance) < n {
		n = len(importance)
	}
	var dimSum float64
	for i := 0; i < n; i++ {
		dimSum += float64(importance[i]) * math.Abs(float64(p.ContextEmbedding[i]))
	}
	dimension := 0.0
	if n > 0 {
		dimension = dimSum / float64(n)
	}
	lambdaScaled := 1 + cfg.FisherDecay*dimension/10

	return base * recency * accessFactor * lambdaScaled
}

// FindSimilarPatterns embeds the query context, filters candidates, scores
// both plain and importance-weighted cosine similarity, and returns the
// top K ranked descending by weighted similarity.
func (s *Store) FindSimilarPatterns(ctx context.Context, query SimilarQuery) ([]SimilarResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	q, err := s.embedder.Embed(ctx, query.ContextText)
	if err != nil {
		return nil, skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "embedding query context", err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}

	unfiltered := query.SkillID == "" && query.Category == "" && query.MinImportance <= 0 &&
		query.OutcomeType == "" && !query.PositiveOnly

	var candidates []*Pattern
	if unfiltered && s.vindex.len() > candidateFanout(limit) {
		// Large unfiltered corpus: let the HNSW accelerator narrow the
		// candidate set before the exact cosine re-scoring pass below.
		ids := s.vindex.search(q, candidateFanout(limit))
		candidates, err = s.loadPatternsByIDs(ctx, ids)
	} else {
		candidates, err = s.loadCandidates(ctx, query.SkillID, query.Category, query.MinImportance, query.OutcomeType, query.PositiveOnly)
	}
	if err != nil {
		return nil, err
	}

	importance := s.fisher.ImportanceVector()
	ranked := rankBySimilarity(q, candidates, importance, limit)

	if s.cfg.AccessTracking {
		for _, r := range ranked {
			r.Pattern.AccessCount++
			if err := s.bumpAccessCount(ctx, r.Pattern.ID); err != nil {
				return nil, err
			}
		}
	}

	s.recordLatency(time.Since(start))
	return ranked, nil
}

func (s *Store) recordLatency(d time.Duration) {
	s.latencies = append(s.latencies, d)
	if len(s.latencies) > 100 {
		s.latencies = s.latencies[len(s.latencies)-100:]
	}
}

// rankBySimilarity scores every candidate and returns the top `limit`
// descending by importance-weighted similarity, with 1-based rank.
func rankBySimilarity(q []float32, candidates []*Pattern, importance []float32, limit int) []SimilarResult {
	results := make([]SimilarResult, 0, len(candidates))
	for _, p := range candidates {
		sim := CosineSimilarity(q, p.ContextEmbedding)
		wsim := ImportanceWeightedSimilarity(q, p.ContextEmbedding, importance)
		results = append(results, SimilarResult{Pattern: p, Similarity: sim, WeightedSimilarity: wsim})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].WeightedSimilarity > results[j].WeightedSimilarity
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// Consolidate applies Fisher decay, resamples importance, and prunes
// low-importance patterns, per §4.3.
func (s *Store) Consolidate(ctx context.Context) (*ConsolidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consolidateLocked(ctx)
}

// ShouldConsolidate reports whether the store is due for a consolidation
// pass, per the §4.3 should_consolidate trigger.
func (s *Store) ShouldConsolidate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldConsolidateLocked(ctx)
}

func (s *Store) shouldConsolidateLocked(ctx context.Context) (bool, error) {
	if time.Since(s.lastConsolidation) < time.Hour && !s.lastConsolidation.IsZero() {
		return false, nil
	}
	total, err := s.countPatterns(ctx)
	if err != nil {
		return false, err
	}
	if total == 0 {
		return false, nil
	}
	newRatio := float64(s.sinceConsolidation) / float64(total)
	if newRatio >= s.cfg.ConsolidationThreshold {
		return true, nil
	}
	if s.cfg.MaxPatterns > 0 && total > int(0.9*float64(s.cfg.MaxPatterns)) {
		return true, nil
	}
	return false, nil
}

func (s *Store) consolidateLocked(ctx context.Context) (*ConsolidationResult, error) {
	start := time.Now()

	total, err := s.countPatterns(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return &ConsolidationResult{PreservationRate: 1.0, Duration: time.Since(start)}, nil
	}
	newRatio := float64(s.sinceConsolidation) / float64(total)
	overfull := s.cfg.MaxPatterns > 0 && total > s.cfg.MaxPatterns
	if newRatio < s.cfg.ConsolidationThreshold && !overfull {
		return &ConsolidationResult{PreservationRate: 1.0, Duration: time.Since(start)}, nil
	}

	s.fisher.Decay(s.cfg.FisherDecay)

	sampleSize := s.cfg.FisherSampleSize
	if sampleSize > total {
		sampleSize = total
	}
	sample, err := s.samplePatterns(ctx, sampleSize)
	if err != nil {
		return nil, err
	}
	avg, err := s.averageEmbedding(ctx, 100)
	if err != nil {
		return nil, err
	}
	for _, p := range sample {
		gradient := subtract(p.ContextEmbedding, avg)
		s.fisher.Update(gradient)
	}

	all, err := s.allPatterns(ctx)
	if err != nil {
		return nil, err
	}
	importance := s.fisher.ImportanceVector()
	var sumImportance float64
	for _, p := range all {
		p.Importance = calculateDimensionImportance(p, importance, s.cfg)
		sumImportance += p.Importance
		if err := s.updateImportanceRow(ctx, p.ID, p.Importance); err != nil {
			return nil, err
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Importance < all[j].Importance })

	var toDelete []*Pattern
	if s.cfg.MaxPatterns > 0 && len(all) > s.cfg.MaxPatterns {
		excess := len(all) - s.cfg.MaxPatterns
		for _, p := range all[:excess] {
			if p.Importance < s.cfg.ImportanceThreshold {
				toDelete = append(toDelete, p)
			}
		}
	} else {
		for _, p := range all {
			if p.Importance < 0.1*s.cfg.ImportanceThreshold {
				toDelete = append(toDelete, p)
			}
		}
	}

	for _, p := range toDelete {
		if err := s.deletePatternRow(ctx, p.ID); err != nil {
			return nil, err
		}
		s.vindex.remove(p.ID)
	}

	processed := len(all)
	pruned := len(toDelete)
	preserved := processed - pruned
	rate := 1.0
	if preserved+pruned > 0 {
		rate = float64(preserved) / float64(preserved+pruned)
	}
	avgImportance := 0.0
	if processed > 0 {
		avgImportance = sumImportance / float64(processed)
	}

	s.sinceConsolidation = 0
	s.lastConsolidation = time.Now()

	result := &ConsolidationResult{
		Processed:        processed,
		Preserved:        preserved,
		Pruned:           pruned,
		PreservationRate: rate,
		Duration:         time.Since(start),
		AvgImportance:    avgImportance,
	}

	if err := s.recordConsolidationHistory(ctx, result); err != nil {
		return nil, err
	}
	if err := s.persistFisher(ctx); err != nil {
		return nil, err
	}

	return result, nil
}

// ConsolidationHistory returns the most recent consolidation runs,
// newest first (SUPPLEMENTED FEATURES: observability only).
func (s *Store) ConsolidationHistory(ctx context.Context, limit int) ([]ConsolidationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, patterns_processed, patterns_preserved, patterns_pruned,
		       preservation_rate, duration_ms, average_importance
		FROM consolidation_history ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "querying consolidation history", err)
	}
	defer rows.Close()

	var out []ConsolidationRecord
	for rows.Next() {
		var r ConsolidationRecord
		var ts int64
		if err := rows.Scan(&r.ID, &ts, &r.PatternsProcessed, &r.PatternsPreserved, &r.PatternsPruned,
			&r.PreservationRate, &r.DurationMs, &r.AverageImportance); err != nil {
			return nil, fmt.Errorf("scanning consolidation_history row: %w", err)
		}
		r.Timestamp = time.Unix(ts, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) recordConsolidationHistory(ctx context.Context, r *ConsolidationResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consolidation_history
			(timestamp, patterns_processed, patterns_preserved, patterns_pruned, preservation_rate, duration_ms, average_importance)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(), r.Processed, r.Preserved, r.Pruned, r.PreservationRate, r.Duration.Milliseconds(), r.AvgImportance)
	if err != nil {
		return skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "recording consolidation history", err)
	}
	return nil
}

// --- SQL row helpers ---

func (s *Store) countPatterns(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patterns`).Scan(&n)
	if err != nil {
		return 0, skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "counting patterns", err)
	}
	return n, nil
}

func (s *Store) insertPatternRow(ctx context.Context, p *Pattern) error {
	featuresJSON, _ := json.Marshal(p.SkillFeatures)
	contextJSON, _ := json.Marshal(p.ContextData)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns
			(pattern_id, context_embedding, skill_id, skill_features, context_data, outcome_type,
			 outcome_reward, importance, original_score, source, access_count, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, embeddingToBytes(p.ContextEmbedding), p.SkillID, string(featuresJSON), string(contextJSON),
		string(p.OutcomeType), p.OutcomeReward, p.Importance, p.OriginalScore, string(p.Source),
		p.AccessCount, p.CreatedAt.Unix(), p.LastAccessedAt.Unix())
	if err != nil {
		return skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "inserting pattern", err)
	}
	return nil
}

func (s *Store) updatePatternRow(ctx context.Context, p *Pattern) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE patterns SET importance = ?, access_count = ?, last_accessed_at = ? WHERE pattern_id = ?`,
		p.Importance, p.AccessCount, p.LastAccessedAt.Unix(), p.ID)
	if err != nil {
		return skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "updating pattern", err)
	}
	return nil
}

func (s *Store) updateImportanceRow(ctx context.Context, id string, importance float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE patterns SET importance = ? WHERE pattern_id = ?`, importance, id)
	if err != nil {
		return skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "updating pattern importance", err)
	}
	return nil
}

func (s *Store) bumpAccessCount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE patterns SET access_count = access_count + 1, last_accessed_at = ? WHERE pattern_id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		return skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "bumping access count", err)
	}
	return nil
}

func (s *Store) deletePatternRow(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM patterns WHERE pattern_id = ?`, id)
	if err != nil {
		return skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "deleting pattern", err)
	}
	return nil
}

// loadCandidates loads patterns matching the given optional filters.
func (s *Store) loadCandidates(ctx context.Context, skillID, category string, minImportance float64, outcomeType OutcomeType, positiveOnly bool) ([]*Pattern, error) {
	query := `SELECT pattern_id, context_embedding, skill_id, skill_features, context_data, outcome_type,
	                  outcome_reward, importance, original_score, source, access_count, created_at, last_accessed_at
	           FROM patterns WHERE 1=1`
	var args []any
	if skillID != "" {
		query += " AND skill_id = ?"
		args = append(args, skillID)
	}
	if outcomeType != "" {
		query += " AND outcome_type = ?"
		args = append(args, string(outcomeType))
	}
	if minImportance > 0 {
		query += " AND importance >= ?"
		args = append(args, minImportance)
	}
	if positiveOnly {
		query += " AND outcome_reward > 0"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "loading candidate patterns", err)
	}
	defer rows.Close()

	var out []*Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		if category != "" && p.SkillFeatures["category"] != category {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// loadPatternsByIDs fetches the exact rows for a set of pattern IDs, used
// to re-score the HNSW accelerator's approximate candidate set exactly.
func (s *Store) loadPatternsByIDs(ctx context.Context, ids []string) ([]*Pattern, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT pattern_id, context_embedding, skill_id, skill_features, context_data, outcome_type,
	                  outcome_reward, importance, original_score, source, access_count, created_at, last_accessed_at
	           FROM patterns WHERE pattern_id IN (` + strings.Join(placeholders, ",") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "loading patterns by id", err)
	}
	defer rows.Close()

	var out []*Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) samplePatterns(ctx context.Context, n int) ([]*Pattern, error) {
	all, err := s.allPatterns(ctx)
	if err != nil {
		return nil, err
	}
	if n >= len(all) {
		return all, nil
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:n], nil
}

func (s *Store) allPatterns(ctx context.Context) ([]*Pattern, error) {
	return s.loadCandidates(ctx, "", "", 0, "", false)
}

func (s *Store) averageEmbedding(ctx context.Context, limit int) ([]float32, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT context_embedding FROM patterns ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, skillerrors.PatternStoreError(skillerrors.ErrCodeStorageIO, "loading embeddings for average", err)
	}
	defer rows.Close()

	sum := make([]float32, s.dim)
	count := 0
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		vec := bytesToEmbedding(raw, s.dim)
		for i := 0; i < s.dim && i < len(vec); i++ {
			sum[i] += vec[i]
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if count == 0 {
		return make([]float32, s.dim), nil
	}
	for i := range sum {
		sum[i] /= float32(count)
	}
	return sum, nil
}

func scanPattern(rows *sql.Rows) (*Pattern, error) {
	var p Pattern
	var embeddingRaw []byte
	var featuresJSON, contextJSON, outcomeType, source string
	var createdAt, lastAccessedAt int64

	if err := rows.Scan(&p.ID, &embeddingRaw, &p.SkillID, &featuresJSON, &contextJSON, &outcomeType,
		&p.OutcomeReward, &p.Importance, &p.OriginalScore, &source, &p.AccessCount, &createdAt, &lastAccessedAt); err != nil {
		return nil, fmt.Errorf("scanning pattern row: %w", err)
	}

	p.OutcomeType = OutcomeType(outcomeType)
	p.Source = Source(source)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.LastAccessedAt = time.Unix(lastAccessedAt, 0)
	p.ContextEmbedding = bytesToEmbedding(embeddingRaw, len(embeddingRaw)/4)

	_ = json.Unmarshal([]byte(featuresJSON), &p.SkillFeatures)
	_ = json.Unmarshal([]byte(contextJSON), &p.ContextData)

	return &p, nil
}

func mergeFeatureMap(features map[string]string, category, trustTier string, tags []string) map[string]string {
	out := make(map[string]string, len(features)+2)
	for k, v := range features {
		out[k] = v
	}
	if category != "" {
		out["category"] = category
	}
	if trustTier != "" {
		out["trust_tier"] = trustTier
	}
	if len(tags) > 0 {
		b, _ := json.Marshal(tags)
		out["tags"] = string(b)
	}
	return out
}

func subtract(a, b []float32) []float32 {
	n := len(a)
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		if i < len(b) {
			out[i] = a[i] - b[i]
		} else {
			out[i] = a[i]
		}
	}
	return out
}
