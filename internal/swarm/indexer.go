package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skillmind/skillmind/internal/embed"
	skillerrors "github.com/skillmind/skillmind/internal/errors"
	"github.com/skillmind/skillmind/internal/skillrepo"
	"github.com/skillmind/skillmind/internal/sourceadapter"
)

// Config tunes one index_all() run.
type Config struct {
	MaxConcurrentWorkers int
	GlobalRateLimit      float64 // tokens/sec
	ContinueOnError      bool

	// Embedder, if set, gates every fetched skill's content through an
	// embeddability check before it counts as indexed: content the
	// embedder can't embed (malformed encoding, empty after stripping,
	// provider error) is recorded as a failure rather than silently
	// upserted. Each partition is treated as one thermal batch: the
	// embedder's batch index is advanced per partition and the final
	// partition is marked as the final batch, so a provider like Ollama
	// that paces itself against GPU thermal throttling sees the same
	// progression it would during a single large sequential run.
	Embedder embed.Embedder
}

// Indexer is the Swarm Indexer: a partitioned, rate-limited parallel
// fetcher over the Source Adapter collaborator (§4.9).
type Indexer struct {
	mu         sync.Mutex
	adapter    sourceadapter.Adapter
	repo       skillrepo.Repository
	cfg        Config
	bucket     *TokenBucket
	logger     *slog.Logger
	cancelled  bool
	onWorker   OnWorkerUpdate
	onProgress OnProgress

	// embedMu serializes calls into cfg.Embedder across partition
	// workers: batch index/final-batch state is shared embedder state,
	// not safe for concurrent partitions to mutate at once.
	embedMu sync.Mutex
}

// New creates an Indexer bound to a fetching collaborator and, optionally,
// a skill repository to persist fetched content to (may be nil).
func New(adapter sourceadapter.Adapter, repo skillrepo.Repository, cfg Config, logger *slog.Logger) *Indexer {
	if cfg.MaxConcurrentWorkers <= 0 {
		cfg.MaxConcurrentWorkers = 4
	}
	if cfg.GlobalRateLimit <= 0 {
		cfg.GlobalRateLimit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		adapter: adapter,
		repo:    repo,
		cfg:     cfg,
		bucket:  NewTokenBucket(cfg.GlobalRateLimit),
		logger:  logger,
	}
}

// OnWorkerUpdate registers the per-worker progress callback.
func (ix *Indexer) OnWorkerUpdate(fn OnWorkerUpdate) { ix.onWorker = fn }

// OnProgress registers the aggregate progress callback.
func (ix *Indexer) OnProgress(fn OnProgress) { ix.onProgress = fn }

// Cancel is advisory: it prevents new workers from starting; in-flight
// workers run to completion (§5).
func (ix *Indexer) Cancel() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.cancelled = true
}

func (ix *Indexer) isCancelled() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.cancelled
}

// IndexAll runs index_all() over the given partitions.
func (ix *Indexer) IndexAll(ctx context.Context, partitions []Partition) (*Result, error) {
	start := time.Now()

	snapshots := make([]WorkerSnapshot, len(partitions))
	for i, p := range partitions {
		snapshots[i] = WorkerSnapshot{PartitionID: p.ID, State: WorkerIdle}
	}

	var (
		mu        sync.Mutex
		completed int
		running   int
		failed    int
	)

	emit := func(i int, snap WorkerSnapshot) {
		mu.Lock()
		snapshots[i] = snap
		switch snap.State {
		case WorkerRunning:
			running++
		case WorkerCompleted:
			running--
			completed++
		case WorkerFailed:
			running--
			completed++
			failed++
		}
		total := len(partitions)
		totalRepos := 0
		indexedRepos := 0
		for _, s := range snapshots {
			totalRepos += s.Result.Found
			indexedRepos += s.Result.Indexed
		}
		pct := 0.0
		if total > 0 {
			pct = float64(completed) / float64(total) * 100
		}
		prog := ProgressSnapshot{
			Total:               total,
			Completed:           completed,
			Running:             running,
			Failed:              failed,
			TotalRepositories:   totalRepos,
			IndexedRepositories: indexedRepos,
			Percentage:          pct,
		}
		mu.Unlock()

		if ix.onWorker != nil {
			ix.onWorker(snap)
		}
		if ix.onProgress != nil {
			ix.onProgress(prog)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, ix.cfg.MaxConcurrentWorkers)
	lastBatch := len(partitions) - 1

	for i, p := range partitions {
		i, p := i, p
		if ix.isCancelled() {
			break
		}

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return nil
			}

			if ix.isCancelled() {
				return nil
			}

			emit(i, WorkerSnapshot{PartitionID: p.ID, State: WorkerRunning})

			result, err := ix.runWorker(gctx, p, i, i == lastBatch)
			if err != nil {
				emit(i, WorkerSnapshot{PartitionID: p.ID, State: WorkerFailed, ErrorMsg: err.Error()})
				return nil
			}
			emit(i, WorkerSnapshot{PartitionID: p.ID, State: WorkerCompleted, Result: *result})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	aggregate := aggregateResults(snapshots)
	duration := time.Since(start)

	totalRequests := aggregate.Indexed + aggregate.Failed
	rps := 0.0
	if duration.Seconds() > 0 {
		rps = float64(aggregate.Indexed) / duration.Seconds()
	}

	return &Result{
		Workers:    snapshots,
		Aggregate:  aggregate,
		Partitions: partitions,
		RateLimit: RateLimitStats{
			TotalRequests:     totalRequests,
			RequestsPerSecond: rps,
		},
		Duration: duration,
	}, nil
}

// runWorker performs one partition's search+fetch under the shared rate
// limiter (§4.9 step 3). batchIndex/isFinalBatch place this partition in
// the embedder's thermal batch progression, when cfg.Embedder is set.
func (ix *Indexer) runWorker(ctx context.Context, p Partition, batchIndex int, isFinalBatch bool) (*IndexResult, error) {
	ix.bucket.Acquire()

	searchResult, err := ix.adapter.Search(ctx, sourceadapter.SearchOptions{Start: p.Start, End: p.End})
	if err != nil {
		return nil, fmt.Errorf("partition %s search: %w", p.ID, err)
	}

	result := &IndexResult{
		Found:        len(searchResult.Repositories),
		Repositories: make([]Repository, 0, len(searchResult.Repositories)),
	}

	var batch []fetchedItem

	for _, ref := range searchResult.Repositories {
		ix.bucket.Acquire()
		content, err := ix.adapter.FetchSkillContent(ctx, sourceadapter.ContentLocation{URL: ref.URL, Path: ref.Path})
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("worker %s: %s", p.ID, err.Error()))
			if !ix.cfg.ContinueOnError {
				return result, skillerrors.IndexerError(skillerrors.ErrCodeWorkerFailed, err.Error(), err)
			}
			continue
		}
		batch = append(batch, fetchedItem{ref: ref, content: content})
	}

	embeddable := ix.embedBatch(ctx, p, batchIndex, isFinalBatch, batch)

	for i, f := range batch {
		if !embeddable[i] {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("worker %s: %s failed embeddability check", p.ID, f.ref.URL))
			continue
		}
		if ix.repo != nil {
			_, err := ix.repo.UpsertFromMetadata(ctx, skillrepo.Metadata{
				ContentSHA256: f.content.SHA256,
				Name:          f.ref.Name,
				SourceURL:     f.ref.URL,
				RawContent:    string(f.content.Raw),
			})
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("worker %s: %s", p.ID, err.Error()))
				continue
			}
		}
		result.Indexed++
		result.Repositories = append(result.Repositories, Repository{URL: f.ref.URL, Name: f.ref.Name})
	}

	return result, nil
}

// fetchedItem is one partition's successfully-fetched skill, pending
// the embeddability gate and upsert.
type fetchedItem struct {
	ref     sourceadapter.RepositoryRef
	content *sourceadapter.FetchedContent
}

// embedBatch runs cfg.Embedder over a partition's fetched content as one
// thermal batch, gating each item on whether it embedded cleanly. With
// no embedder configured, everything passes. Embedding calls are
// serialized across partitions: batch index and final-batch state are
// shared embedder state, not safe for concurrent partitions to set at
// once.
func (ix *Indexer) embedBatch(ctx context.Context, p Partition, batchIndex int, isFinalBatch bool, batch []fetchedItem) []bool {
	ok := make([]bool, len(batch))
	for i := range ok {
		ok[i] = true
	}
	if ix.cfg.Embedder == nil || len(batch) == 0 {
		return ok
	}

	texts := make([]string, len(batch))
	for i, f := range batch {
		texts[i] = string(f.content.Raw)
	}

	ix.embedMu.Lock()
	ix.cfg.Embedder.SetBatchIndex(batchIndex)
	ix.cfg.Embedder.SetFinalBatch(isFinalBatch)
	vectors, err := ix.cfg.Embedder.EmbedBatch(ctx, texts)
	if err == nil && !isFinalBatch {
		if delay, supported := interBatchDelay(ix.cfg.Embedder); supported && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
	}
	ix.embedMu.Unlock()

	if err != nil {
		ix.logger.Warn("partition_embedding_failed",
			slog.String("partition", p.ID), slog.Int("batch_index", batchIndex), slog.String("error", err.Error()))
		for i := range ok {
			ok[i] = false
		}
		return ok
	}
	for i := range ok {
		ok[i] = i < len(vectors) && len(vectors[i]) > 0
	}
	return ok
}

// interBatchDelayer is implemented by embedders that pace themselves
// between batches for thermal management (internal/embed's
// OllamaEmbedder); it is deliberately not part of the Embedder
// interface since static embedders need no such pacing.
type interBatchDelayer interface {
	GetInterBatchDelay() time.Duration
}

// innerEmbedder is implemented by embedder decorators (internal/embed's
// CachedEmbedder) that wrap another embedder without themselves
// supporting interBatchDelayer.
type innerEmbedder interface {
	Inner() embed.Embedder
}

// interBatchDelay unwraps decorator embedders to find a configured
// inter-batch delay, if any layer supports one.
func interBatchDelay(e embed.Embedder) (time.Duration, bool) {
	for e != nil {
		if d, ok := e.(interBatchDelayer); ok {
			return d.GetInterBatchDelay(), true
		}
		w, ok := e.(innerEmbedder)
		if !ok {
			return 0, false
		}
		e = w.Inner()
	}
	return 0, false
}

// aggregateResults applies §4.9 step 4: dedupe repositories across
// workers by canonical URL; sum found/failed/errors across workers; a
// failed worker contributes 1 to failed and a "Worker {id}: {error}"
// message.
func aggregateResults(snapshots []WorkerSnapshot) IndexResult {
	var agg IndexResult
	seen := make(map[string]struct{})

	for _, snap := range snapshots {
		agg.Found += snap.Result.Found
		agg.Failed += snap.Result.Failed
		agg.Errors = append(agg.Errors, snap.Result.Errors...)

		if snap.State == WorkerFailed {
			agg.Failed++
			agg.Errors = append(agg.Errors, fmt.Sprintf("Worker %s: %s", snap.PartitionID, snap.ErrorMsg))
			continue
		}

		for _, repo := range snap.Result.Repositories {
			if _, dup := seen[repo.URL]; dup {
				continue
			}
			seen[repo.URL] = struct{}{}
			agg.Indexed++
			agg.Repositories = append(agg.Repositories, repo)
		}
	}

	return agg
}
