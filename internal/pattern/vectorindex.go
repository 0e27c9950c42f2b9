package pattern

import (
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// vectorIndex is an in-memory HNSW accelerator over pattern context
// embeddings. SQLite remains the source of truth for every Pattern;
// this index only narrows FindSimilarPatterns' candidate set for
// unfiltered queries over large corpora. It is rebuilt from SQLite
// each time the Store opens, so losing it costs rebuild time, never
// data: a process crash or corrupt graph is invisible to callers.
type vectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dim   int

	idMap   map[string]uint64 // pattern ID -> graph key
	keyMap  map[uint64]string // graph key -> pattern ID
	nextKey uint64
}

func newVectorIndex(dim int) *vectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &vectorIndex{
		graph:  graph,
		dim:    dim,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// add inserts or replaces the vector for id. A replace orphans the old
// key rather than calling graph.Delete, which corrupts coder/hnsw's
// graph when the deleted node is its last one.
func (v *vectorIndex) add(id string, vec []float32) {
	if len(vec) != v.dim {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, ok := v.idMap[id]; ok {
		delete(v.keyMap, existing)
		delete(v.idMap, id)
	}

	key := v.nextKey
	v.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeUnit(normalized)

	v.graph.Add(hnsw.MakeNode(key, normalized))
	v.idMap[id] = key
	v.keyMap[key] = id
}

// remove orphans id's key. The node stays in the graph but never
// surfaces from search again.
func (v *vectorIndex) remove(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := v.idMap[id]; ok {
		delete(v.keyMap, key)
		delete(v.idMap, id)
	}
}

// search returns up to k approximate nearest-neighbor pattern IDs for
// query. Callers must re-score the returned IDs exactly; this is a
// candidate-narrowing pass, not a ranking.
func (v *vectorIndex) search(query []float32, k int) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if k <= 0 || v.graph.Len() == 0 {
		return nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeUnit(normalized)

	nodes := v.graph.Search(normalized, k)
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if id, ok := v.keyMap[n.Key]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (v *vectorIndex) len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

func normalizeUnit(vec []float32) {
	var sumSquares float64
	for _, x := range vec {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] *= inv
	}
}

// candidateFanout sizes the HNSW pre-filter well above limit so the
// exact re-scoring pass still has enough candidates to find the true
// top results after cosine re-ranking.
func candidateFanout(limit int) int {
	fanout := limit * 8
	if fanout < 50 {
		fanout = 50
	}
	return fanout
}
