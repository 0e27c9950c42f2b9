// Package sourceadapter defines the Source Adapter collaborator contract
// consumed by the Swarm Indexer: search a partition's keyspace range and
// fetch raw skill content. The core never implements a concrete adapter;
// per-registry fetching is an external, excluded subsystem (§6).
package sourceadapter

import "context"

// SearchOptions scopes a partition search.
type SearchOptions struct {
	Start string
	End   string
	Limit int
}

// RepositoryRef is one discovered repository reference.
type RepositoryRef struct {
	URL  string
	Name string
	Path string
}

// SearchResult is the outcome of one Search call.
type SearchResult struct {
	Repositories []RepositoryRef
	TotalCount   int
	HasMore      bool
}

// ContentLocation identifies where to fetch a specific skill's content.
type ContentLocation struct {
	URL  string
	Path string
}

// FetchedContent is raw fetched skill content plus its content hash.
type FetchedContent struct {
	Raw      []byte
	SHA256   string
	Location ContentLocation
	Path     string
}

// Adapter is the collaborator contract the Swarm Indexer requires of an
// upstream registry integration. Implementations throw (return an error)
// on failure and are expected to obey the shared rate limiter themselves
// by calling it before each network operation.
type Adapter interface {
	Search(ctx context.Context, opts SearchOptions) (*SearchResult, error)
	FetchSkillContent(ctx context.Context, loc ContentLocation) (*FetchedContent, error)
	HealthCheck(ctx context.Context) error
}
