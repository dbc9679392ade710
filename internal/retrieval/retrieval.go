// Package retrieval implements the two-step retriever (C4) and the hybrid
// vector+text retriever (C5) it builds on, generalizing the teacher's
// RetrieverService/reciprocalRankFusion from a single Postgres-backed vector
// searcher into tier-agnostic capability interfaces.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/textindex"
	"github.com/ragcore/retrieval-engine/internal/vectorindex"
)

// ChunkFetcher resolves chunk ids returned by an index into full chunks,
// since VectorIndex/TextIndex only deal in ids and scores.
type ChunkFetcher interface {
	FetchChunks(ctx context.Context, ids []string) (map[string]model.Chunk, error)
}

// Rescorer is the subset of embedregistry.Registry the two-step retriever
// needs, kept as a narrow interface so retrieval doesn't import embedregistry.
type Rescorer interface {
	RescoreCandidates(ctx context.Context, premiumName, query string, candidates []model.RetrievedChunk) ([]model.RetrievedChunk, error)
}

// Config tunes C4/C5 behavior. Zero value uses the documented defaults.
type Config struct {
	TopK                int
	Threshold           float64
	ReturnLimit         int
	MaxChunksPerDocument int
	EnableRecencyBoost  bool
}

func (c Config) withDefaults() Config {
	if c.TopK == 0 {
		c.TopK = 20
	}
	if c.Threshold == 0 {
		c.Threshold = 0.35
	}
	if c.ReturnLimit == 0 {
		c.ReturnLimit = 5
	}
	if c.MaxChunksPerDocument == 0 {
		c.MaxChunksPerDocument = 2
	}
	return c
}

// HybridRetriever (C5) fans out to a tier's vector and text index
// concurrently, fuses the two rankings with reciprocal rank fusion, and
// deduplicates per source document.
type HybridRetriever struct {
	vector  vectorindex.VectorIndex
	text    textindex.TextIndex
	fetcher ChunkFetcher
	cfg     Config
}

func NewHybridRetriever(vector vectorindex.VectorIndex, text textindex.TextIndex, fetcher ChunkFetcher, cfg Config) *HybridRetriever {
	return &HybridRetriever{vector: vector, text: text, fetcher: fetcher, cfg: cfg.withDefaults()}
}

// Retrieve runs vector + text search concurrently against one tier, fuses,
// reranks, deduplicates, and returns the top ReturnLimit chunks.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, queryVec []float32, filter vectorindex.Filter) ([]model.RetrievedChunk, error) {
	var vecResults []model.VectorRecord
	var textResults []model.TextRecord

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vecResults, err = h.vector.Search(gCtx, queryVec, h.cfg.TopK, filter)
		return err
	})
	if h.text != nil && query != "" {
		g.Go(func() error {
			var err error
			textResults, err = h.text.Search(gCtx, query, h.cfg.TopK, filter)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.IndexUnavailable("retrieval.HybridRetriever.Retrieve", err)
	}

	fused := fuse(vecResults, textResults)
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.id
	}
	chunks, err := h.fetcher.FetchChunks(ctx, ids)
	if err != nil {
		return nil, errs.IndexUnavailable("retrieval.HybridRetriever.Retrieve", fmt.Errorf("fetch chunks: %w", err))
	}

	now := time.Now().UTC()
	result := make([]model.RetrievedChunk, 0, len(fused))
	for _, f := range fused {
		c, ok := chunks[f.id]
		if !ok {
			continue
		}
		score := f.score
		if h.cfg.EnableRecencyBoost {
			score = 0.70*f.score + 0.15*recencyBoost(c.CreatedAt, now) + 0.15*parentDocBoost(c.ParentDocSize)
		}
		result = append(result, model.RetrievedChunk{Chunk: c, Tier: filter.Tier, Score: score})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Score > result[j].Score })
	deduped := dedupe(result, h.cfg.MaxChunksPerDocument)

	if len(deduped) > h.cfg.ReturnLimit {
		deduped = deduped[:h.cfg.ReturnLimit]
	}
	for i := range deduped {
		deduped[i].Ordinal = i + 1
	}
	return deduped, nil
}

type fusedItem struct {
	id    string
	score float64
}

// fuse combines vector and text rankings with reciprocal rank fusion, k=60.
func fuse(vector []model.VectorRecord, text []model.TextRecord) []fusedItem {
	const k = 60
	scores := make(map[string]float64)
	order := make([]string, 0, len(vector)+len(text))

	add := func(id string, rank int) {
		if _, seen := scores[id]; !seen {
			order = append(order, id)
		}
		scores[id] += 1.0 / float64(k+rank+1)
	}
	for rank, v := range vector {
		add(v.ChunkID, rank)
	}
	for rank, t := range text {
		add(t.ChunkID, rank)
	}

	out := make([]fusedItem, len(order))
	for i, id := range order {
		out[i] = fusedItem{id: id, score: scores[id]}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func dedupe(ranked []model.RetrievedChunk, maxPerDoc int) []model.RetrievedChunk {
	counts := make(map[string]int)
	out := make([]model.RetrievedChunk, 0, len(ranked))
	for _, r := range ranked {
		if counts[r.Chunk.DocumentID] >= maxPerDoc {
			continue
		}
		counts[r.Chunk.DocumentID]++
		out = append(out, r)
	}
	return out
}

// recencyBoost scores [0,1]: 1.0 within 7 days, linear decay to 0 at 365 days.
func recencyBoost(created, now time.Time) float64 {
	days := now.Sub(created).Hours() / 24
	if days < 0 {
		days = 0
	}
	if days <= 7 {
		return 1.0
	}
	if days >= 365 {
		return 0.0
	}
	return 1.0 - (days-7)/(365-7)
}

// parentDocBoost scores [0,1] by source document size, capped at 50 chunks.
func parentDocBoost(parentDocSize int) float64 {
	if parentDocSize <= 0 {
		return 0
	}
	return math.Min(float64(parentDocSize)/50.0, 1.0)
}
