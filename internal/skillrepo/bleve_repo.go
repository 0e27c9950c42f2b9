package skillrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	skillerrors "github.com/skillmind/skillmind/internal/errors"
)

// skillDoc is the document structure indexed in Bleve: free text over a
// skill's name, category, tags and raw content for the keyword recall path.
type skillDoc struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Tags     string `json:"tags"`
	Content  string `json:"content"`
}

// BleveRepository implements Repository using a Bleve full-text index
// plus an in-memory content-hash index, grounded on the teacher's
// BleveBM25Index abstraction (internal/store/types.go's BM25Index
// interface and bm25.go's Bleve-backed implementation).
type BleveRepository struct {
	mu      sync.RWMutex
	index   bleve.Index
	path    string
	byID    map[string]*Skill
	byHash  map[string]string // content sha256 -> skill id
	closed  bool
}

// NewBleveRepository opens (or creates) a Bleve-backed skill repository.
// If path is empty, an in-memory index is created.
func NewBleveRepository(path string) (*BleveRepository, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, fmt.Errorf("creating skill repository directory: %w", mkErr)
			}
		}
		idx, err = bleve.Open(path)
		if err != nil {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening skill repository index: %w", err)
	}

	return &BleveRepository{
		index:  idx,
		path:   path,
		byID:   make(map[string]*Skill),
		byHash: make(map[string]string),
	}, nil
}

// UpsertFromMetadata is idempotent on ContentSHA256: re-upserting
// identical content returns Action=unchanged.
func (r *BleveRepository) UpsertFromMetadata(ctx context.Context, md Metadata) (*UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, skillerrors.IndexerError(skillerrors.ErrCodePartitionInvalid, "skill repository is closed", nil)
	}

	if existingID, ok := r.byHash[md.ContentSHA256]; ok {
		return &UpsertResult{ID: existingID, Action: ActionUnchanged}, nil
	}

	id := md.SkillID
	if id == "" {
		id = md.ContentSHA256
	}

	action := ActionCreated
	if _, exists := r.byID[id]; exists {
		action = ActionUpdated
	}

	skill := &Skill{
		ID:            id,
		ContentSHA256: md.ContentSHA256,
		Name:          md.Name,
		Category:      md.Category,
		TrustTier:     md.TrustTier,
		Tags:          md.Tags,
		SourceURL:     md.SourceURL,
	}
	r.byID[id] = skill
	r.byHash[md.ContentSHA256] = id

	doc := skillDoc{
		Name:     md.Name,
		Category: md.Category,
		Tags:     strings.Join(md.Tags, " "),
		Content:  md.RawContent,
	}
	if err := r.index.Index(id, doc); err != nil {
		return nil, fmt.Errorf("indexing skill %s: %w", id, err)
	}

	return &UpsertResult{ID: id, Action: action}, nil
}

// GetByContentHash returns the skill stored under sha256, if any.
func (r *BleveRepository) GetByContentHash(ctx context.Context, sha256 string) (*Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[sha256]
	if !ok {
		return nil, nil
	}
	return r.byID[id], nil
}

// Search runs a Bleve match query across name/category/tags/content.
func (r *BleveRepository) Search(ctx context.Context, query string, limit int) ([]*Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit

	result, err := r.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching skill repository: %w", err)
	}

	out := make([]*Skill, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if s, ok := r.byID[hit.ID]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Close releases the underlying Bleve index.
func (r *BleveRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.index.Close()
}
