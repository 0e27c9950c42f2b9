// Package skillrepo defines the Skill Repository collaborator: the
// abstract upsert/get-by-content-hash contract the Swarm Indexer writes
// through, plus a Bleve-backed full-text implementation over skill name,
// category, tags and raw content (the keyword recall path for the Source
// Adapter/Skill Repository collaborators named in §6).
package skillrepo

import "context"

// Action classifies the outcome of an upsert.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Metadata is the normalized record the Swarm Indexer writes on each
// fetched skill.
type Metadata struct {
	ContentSHA256 string
	SkillID       string
	Name          string
	Category      string
	TrustTier     string
	Tags          []string
	SourceURL     string
	RawContent    string
}

// UpsertResult reports what happened for one upsert_from_metadata call.
type UpsertResult struct {
	ID     string
	Action Action
}

// Skill is a stored skill record.
type Skill struct {
	ID            string
	ContentSHA256 string
	Name          string
	Category      string
	TrustTier     string
	Tags          []string
	SourceURL     string
}

// Repository is the collaborator contract consumed by the Swarm Indexer's
// write path (§6): idempotent on content hash.
type Repository interface {
	UpsertFromMetadata(ctx context.Context, md Metadata) (*UpsertResult, error)
	GetByContentHash(ctx context.Context, sha256 string) (*Skill, error)
	Search(ctx context.Context, query string, limit int) ([]*Skill, error)
	Close() error
}
