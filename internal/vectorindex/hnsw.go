package vectorindex

import (
	"context"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/ragcore/retrieval-engine/internal/model"
)

// HNSW is an in-memory VectorIndex backed by coder/hnsw's pure-Go graph,
// used for the in-memory/test variant named in spec §9 and for deployments
// without a Postgres vector column.
type HNSW struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]

	idMap   map[string]uint64
	keyMap  map[uint64]model.Chunk
	nextKey uint64
}

func NewHNSW() *HNSW {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return &HNSW{
		graph:  g,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]model.Chunk),
	}
}

var _ VectorIndex = (*HNSW)(nil)

func (h *HNSW) Upsert(ctx context.Context, chunks []model.Chunk) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range chunks {
		if existing, ok := h.idMap[c.ID]; ok {
			// lazy deletion: orphan the old key, coder/hnsw can't safely
			// remove the last node in the graph.
			delete(h.keyMap, existing)
			delete(h.idMap, c.ID)
		}
		key := h.nextKey
		h.nextKey++

		vec := make([]float32, len(c.Embedding))
		copy(vec, c.Embedding)
		normalize(vec)

		h.graph.Add(hnsw.MakeNode(key, vec))
		h.idMap[c.ID] = key
		h.keyMap[key] = c
	}
	return nil
}

func (h *HNSW) Search(ctx context.Context, queryVec []float32, topK int, filter Filter) ([]model.VectorRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph.Len() == 0 {
		return nil, nil
	}
	q := make([]float32, len(queryVec))
	copy(q, queryVec)
	normalize(q)

	// over-fetch to leave room for filtering, then trim.
	nodes := h.graph.Search(q, topK*4+topK)

	out := make([]model.VectorRecord, 0, topK)
	for _, n := range nodes {
		chunk, ok := h.keyMap[n.Key]
		if !ok {
			continue
		}
		if !matches(chunk, filter) {
			continue
		}
		dist := h.graph.Distance(q, n.Value)
		out = append(out, model.VectorRecord{ChunkID: chunk.ID, Score: 1 - float64(dist)/2})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (h *HNSW) Delete(ctx context.Context, chunkIDs []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range chunkIDs {
		if key, ok := h.idMap[id]; ok {
			delete(h.keyMap, key)
			delete(h.idMap, id)
		}
	}
	return nil
}

func matches(c model.Chunk, f Filter) bool {
	if f.Tier != "" && c.Tier != f.Tier {
		return false
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(f.now()) {
		return false
	}
	if f.DocumentType != nil && (c.DocumentType == nil || *c.DocumentType != *f.DocumentType) {
		return false
	}
	if f.FolderID != nil && (c.FolderID == nil || *c.FolderID != *f.FolderID) {
		return false
	}
	if f.ExcludePrivileged && c.IsPrivileged {
		return false
	}
	return true
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= inv
	}
}
