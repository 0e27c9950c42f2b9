// Package swarm implements the Swarm Indexer: a partitioned, rate-limited
// parallel fetcher that populates the skill corpus the Pattern Store and
// SONA Router operate over.
package swarm

import "time"

// WorkerState is the lifecycle state of one partition worker.
type WorkerState string

const (
	WorkerIdle      WorkerState = "idle"
	WorkerRunning   WorkerState = "running"
	WorkerCompleted WorkerState = "completed"
	WorkerFailed    WorkerState = "failed"
)

// Partition is a contiguous, disjoint keyspace range assigned to one
// worker.
type Partition struct {
	ID       string
	Start    string
	End      string
	Priority int
}

// Repository is one fetched item from a partition search.
type Repository struct {
	URL  string
	Name string
}

// IndexResult is one worker's outcome.
type IndexResult struct {
	Found        int
	Indexed      int
	Failed       int
	Errors       []string
	Repositories []Repository
}

// WorkerSnapshot is an immutable view of a worker's state at a point in
// time, passed to progress callbacks.
type WorkerSnapshot struct {
	PartitionID string
	State       WorkerState
	Result      IndexResult
	ErrorMsg    string
}

// ProgressSnapshot summarizes overall swarm progress.
type ProgressSnapshot struct {
	Total               int
	Completed           int
	Running             int
	Failed              int
	TotalRepositories   int
	IndexedRepositories int
	Percentage          float64
}

// RateLimitStats summarizes token-bucket throughput for a run.
type RateLimitStats struct {
	TotalRequests     int
	RequestsPerSecond float64
}

// Result is the aggregate outcome of index_all().
type Result struct {
	Workers    []WorkerSnapshot
	Aggregate  IndexResult
	Partitions []Partition
	RateLimit  RateLimitStats
	Duration   time.Duration
}

// OnWorkerUpdate is invoked on every worker state transition.
type OnWorkerUpdate func(WorkerSnapshot)

// OnProgress is invoked after every worker state transition with overall
// swarm progress.
type OnProgress func(ProgressSnapshot)
