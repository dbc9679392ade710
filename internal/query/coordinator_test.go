package query

import (
	"context"
	"testing"

	"github.com/ragcore/retrieval-engine/internal/answer"
	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/orchestrator"
	"github.com/ragcore/retrieval-engine/internal/vectorindex"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string, premiumName string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type fakeCache struct {
	hit      model.CacheEntry
	hasHit   bool
	stored   int
	lastSave model.AnswerResult
}

func (f *fakeCache) Lookup(ctx context.Context, queryVec []float32, fingerprint string) (model.CacheEntry, bool) {
	return f.hit, f.hasHit
}

func (f *fakeCache) Store(ctx context.Context, query string, queryVec []float32, fingerprint string, ans model.AnswerResult) {
	f.stored++
	f.lastSave = ans
}

type fakeOrchestrator struct {
	result orchestrator.Result
	err    error
}

func (f *fakeOrchestrator) Retrieve(ctx context.Context, query string, queryVec []float32, filter vectorindex.Filter, rescore bool) (orchestrator.Result, error) {
	return f.result, f.err
}

type fakeGenerator struct {
	result *answer.Result
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, query string, chunks []model.RetrievedChunk) (*answer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeEvaluator struct {
	scores model.QualityScores
}

func (f *fakeEvaluator) Evaluate(query, answerText string, chunks []model.RetrievedChunk) model.QualityScores {
	return f.scores
}

func sampleChunks(n int) []model.RetrievedChunk {
	out := make([]model.RetrievedChunk, n)
	for i := range out {
		out[i] = model.RetrievedChunk{Chunk: model.Chunk{ID: "c" + string(rune('0'+i)), Content: "content"}, Score: 1.0, Ordinal: i + 1}
	}
	return out
}

func TestQueryCacheHitShortCircuits(t *testing.T) {
	cached := model.AnswerResult{Answer: "cached answer"}
	cache := &fakeCache{hit: model.CacheEntry{Answer: cached}, hasHit: true}
	gen := &fakeGenerator{}

	c := New(&fakeEmbedder{vec: []float32{1, 0}}, cache, &fakeOrchestrator{}, gen, &fakeEvaluator{}, Config{})

	result, err := c.Query(context.Background(), Request{Query: "what is paris", UseCache: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !result.CacheHit {
		t.Fatal("expected CacheHit true")
	}
	if result.Answer != "cached answer" {
		t.Fatalf("expected cached answer, got %q", result.Answer)
	}
}

func TestQueryFullPipelineOnCacheMiss(t *testing.T) {
	chunks := sampleChunks(3)
	cache := &fakeCache{}
	orch := &fakeOrchestrator{result: orchestrator.Result{Chunks: chunks, TiersUsed: []model.Tier{model.TierCurated}}}
	gen := &fakeGenerator{result: &answer.Result{Answer: "paris is the capital [1]", Citations: []model.Citation{{Ordinal: 1, ChunkID: "c0"}}, Confidence: 0.8}}
	eval := &fakeEvaluator{scores: model.QualityScores{Faithfulness: 0.9}}

	c := New(&fakeEmbedder{vec: []float32{1, 0}}, cache, orch, gen, eval, Config{})

	result, err := c.Query(context.Background(), Request{Query: "what is the capital of france", UseCache: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Answer == "" {
		t.Fatal("expected non-empty answer")
	}
	if len(result.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(result.Citations))
	}
	if result.Quality.Faithfulness != 0.9 {
		t.Fatalf("expected evaluator score to be wired through, got %f", result.Quality.Faithfulness)
	}
	if cache.stored != 1 {
		t.Fatalf("expected cache store to be called once, got %d", cache.stored)
	}
}

func TestQueryToleratesPartialOrchestratorFailure(t *testing.T) {
	chunks := sampleChunks(2)
	orch := &fakeOrchestrator{
		result: orchestrator.Result{Chunks: chunks, TiersUsed: []model.Tier{model.TierCurated}},
		err:    errs.PartialResult("live web tier timed out"),
	}
	gen := &fakeGenerator{result: &answer.Result{Answer: "an answer", Confidence: 0.5}}

	c := New(&fakeEmbedder{vec: []float32{1, 0}}, nil, orch, gen, nil, Config{})

	result, err := c.Query(context.Background(), Request{Query: "what is the capital of france"})
	if err != nil {
		t.Fatalf("Query should tolerate a partial result, got error: %v", err)
	}
	if result.Answer != "an answer" {
		t.Fatalf("expected degraded pipeline to still produce an answer, got %q", result.Answer)
	}
}

func TestQueryNonPartialOrchestratorFailurePropagates(t *testing.T) {
	orch := &fakeOrchestrator{err: errs.IndexUnavailable("orchestrator.Retrieve", nil)}
	c := New(&fakeEmbedder{vec: []float32{1, 0}}, nil, orch, &fakeGenerator{}, nil, Config{})

	_, err := c.Query(context.Background(), Request{Query: "what is the capital of france"})
	if err == nil {
		t.Fatal("expected a non-partial orchestrator error to propagate")
	}
}

func TestQueryGenerationFailureLeavesAnswerEmpty(t *testing.T) {
	chunks := sampleChunks(1)
	orch := &fakeOrchestrator{result: orchestrator.Result{Chunks: chunks, TiersUsed: []model.Tier{model.TierCurated}}}
	gen := &fakeGenerator{err: errs.GenerationFailed("answer.Generate", nil)}

	c := New(&fakeEmbedder{vec: []float32{1, 0}}, nil, orch, gen, nil, Config{})

	result, err := c.Query(context.Background(), Request{Query: "what is the capital of france"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Answer != "" {
		t.Fatalf("expected empty answer on generation failure, got %q", result.Answer)
	}
	if result.TiersUsed == nil || len(result.TiersUsed) != 1 {
		t.Fatalf("expected sources to survive a generation failure, got %+v", result.TiersUsed)
	}
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	c := New(&fakeEmbedder{}, nil, &fakeOrchestrator{}, &fakeGenerator{}, nil, Config{})
	if _, err := c.Query(context.Background(), Request{Query: "   "}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestQueryTopKBoundaries(t *testing.T) {
	c := New(&fakeEmbedder{vec: []float32{1}}, nil, &fakeOrchestrator{}, &fakeGenerator{}, nil, Config{MaxTopK: 25})

	if _, err := c.Query(context.Background(), Request{Query: "q", TopK: 26}); err == nil {
		t.Fatal("expected error for top_k above max")
	}
	if _, err := c.Query(context.Background(), Request{Query: "q", TopK: 1}); err != nil {
		t.Fatalf("expected top_k=1 to be accepted, got %v", err)
	}
}

func TestQueryEmbedderFailurePropagates(t *testing.T) {
	c := New(&fakeEmbedder{err: errs.EmbedderUnavailable("embedregistry.EmbedQuery", nil)}, nil, &fakeOrchestrator{}, &fakeGenerator{}, nil, Config{})
	if _, err := c.Query(context.Background(), Request{Query: "q"}); err == nil {
		t.Fatal("expected embedder failure to propagate")
	}
}
