// Package query implements the Query Coordinator (C12), the single public
// entry point for the retrieval-augmented answer pipeline: validate → embed
// → cache lookup → tier orchestration → generation → evaluation → cache
// store → response assembly. Pipeline shape grounded on
// internal/handler/chat.go's Chat handler. Unlike the teacher's handler,
// cache lookup here can't run in parallel with embedding via errgroup: the
// semantic cache is keyed by the query embedding itself (cosine similarity,
// not an exact hash of the raw query text), so embedding must complete
// first — embed and cache-lookup stay sequential, and only the tier
// orchestrator's own internal fan-out (internal/orchestrator) runs
// concurrently.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ragcore/retrieval-engine/internal/answer"
	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/orchestrator"
	"github.com/ragcore/retrieval-engine/internal/vectorindex"
)

// Embedder abstracts the embedder registry for the coordinator.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string, premiumName string) ([]float32, error)
}

// Cache abstracts the semantic cache.
type Cache interface {
	Lookup(ctx context.Context, queryVec []float32, fingerprint string) (model.CacheEntry, bool)
	Store(ctx context.Context, query string, queryVec []float32, fingerprint string, answer model.AnswerResult)
}

// Orchestrator abstracts the three-tier orchestrator.
type Orchestrator interface {
	Retrieve(ctx context.Context, query string, queryVec []float32, filter vectorindex.Filter, rescore bool) (orchestrator.Result, error)
}

// Generator abstracts the answer generator (C9).
type Generator interface {
	Generate(ctx context.Context, query string, chunks []model.RetrievedChunk) (*answer.Result, error)
}

// Evaluator abstracts the quality evaluator.
type Evaluator interface {
	Evaluate(query, answerText string, chunks []model.RetrievedChunk) model.QualityScores
}

// Config tunes the coordinator.
type Config struct {
	DefaultTopK       int
	MaxTopK           int
	QueryTimeout       time.Duration
	MaxContextChunks   int // token-budget proxy: cap on chunks passed to the generator
	UseCacheDefault    bool
}

func (c Config) withDefaults() Config {
	if c.DefaultTopK == 0 {
		c.DefaultTopK = 10
	}
	if c.MaxTopK == 0 {
		c.MaxTopK = 25
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}
	if c.MaxContextChunks == 0 {
		c.MaxContextChunks = 8
	}
	return c
}

// Coordinator is the C12 public entry point.
type Coordinator struct {
	embedder     Embedder
	cache        Cache
	orchestrator Orchestrator
	generator    Generator
	evaluator    Evaluator
	cfg          Config
}

func New(embedder Embedder, cache Cache, orch Orchestrator, generator Generator, evaluator Evaluator, cfg Config) *Coordinator {
	return &Coordinator{
		embedder:     embedder,
		cache:        cache,
		orchestrator: orch,
		generator:    generator,
		evaluator:    evaluator,
		cfg:          cfg.withDefaults(),
	}
}

// Request is the public query request.
type Request struct {
	Query           string
	TopK            int
	UseCache        bool
	PremiumName     string
	UserContext     model.UserContext
	EnableWebSearch bool
	WebMode         orchestrator.TriggerMode
}

// Query runs the full pipeline and returns the assembled AnswerResult.
func (c *Coordinator) Query(ctx context.Context, req Request) (*model.AnswerResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errs.Validation("query.Query", fmt.Errorf("query is empty"))
	}
	topK := req.TopK
	if topK == 0 {
		topK = c.cfg.DefaultTopK
	}
	if topK < 1 || topK > c.cfg.MaxTopK {
		return nil, errs.Validation("query.Query", fmt.Errorf("top_k %d out of range [1,%d]", topK, c.cfg.MaxTopK))
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	var decisionPath []model.DecisionStep
	record := func(stage, detail string, elapsed time.Duration) {
		decisionPath = append(decisionPath, model.DecisionStep{Stage: stage, Detail: detail, Elapsed: elapsed.String()})
	}

	useCache := req.UseCache || (req.TopK == 0 && c.cfg.UseCacheDefault)
	fingerprint := fingerprintFor(req.UserContext)

	// Step 2: embed the query once, reused for cache lookup and retrieval.
	tEmbedStart := time.Now()
	queryVec, err := c.embedder.EmbedQuery(ctx, req.Query, req.PremiumName)
	if err != nil {
		return nil, err
	}
	record("embed", req.PremiumName, time.Since(tEmbedStart))

	// Step 3: cache lookup.
	if useCache && c.cache != nil {
		if entry, ok := c.cache.Lookup(ctx, queryVec, fingerprint); ok {
			result := entry.Answer
			result.CacheHit = true
			result.DecisionPath = append(decisionPath, model.DecisionStep{Stage: "cache", Detail: "hit"})
			return &result, nil
		}
		record("cache", "miss", 0)
	}

	// Step 4: tier orchestration.
	filter := vectorindex.Filter{
		DocumentType:       req.UserContext.DocumentType,
		FolderID:           req.UserContext.FolderID,
		ExcludePrivileged:  req.UserContext.ExcludePrivileged,
	}
	tRetrieveStart := time.Now()
	orchResult, err := c.orchestrator.Retrieve(ctx, req.Query, queryVec, filter, req.PremiumName != "")
	var chunks []model.RetrievedChunk
	var tiersUsed []model.Tier
	if err != nil {
		if !errs.IsPartialResult(err) {
			return nil, err
		}
		slog.Warn("[QUERY] retrieval returned partial result", "query", req.Query, "error", err)
	}
	if orchResult.Chunks != nil {
		chunks = orchResult.Chunks
		tiersUsed = orchResult.TiersUsed
	}
	record("retrieve", fmt.Sprintf("%d chunks across %d tiers", len(chunks), len(tiersUsed)), time.Since(tRetrieveStart))

	if len(chunks) > topK {
		chunks = chunks[:topK]
	}

	// Step 5: truncate to the generator's context budget and generate.
	contextChunks := chunks
	if len(contextChunks) > c.cfg.MaxContextChunks {
		contextChunks = contextChunks[:c.cfg.MaxContextChunks]
	}

	var answerText string
	var citations []model.Citation
	var confidence float64
	if len(contextChunks) > 0 {
		tGenStart := time.Now()
		genResult, genErr := c.generator.Generate(ctx, req.Query, contextChunks)
		if genErr != nil {
			// Failure in generation leaves sources intact per spec §4.12 step 5:
			// the caller still gets an AnswerResult with empty answer.
			slog.Error("[QUERY] generation failed", "query", req.Query, "error", genErr)
			record("generate", "failed: "+genErr.Error(), time.Since(tGenStart))
		} else {
			answerText = genResult.Answer
			citations = genResult.Citations
			confidence = genResult.Confidence
			record("generate", fmt.Sprintf("%d citations", len(citations)), time.Since(tGenStart))
		}
	}

	// Step 6: evaluate (skipped when no evaluator is wired or the answer is empty).
	var quality model.QualityScores
	if c.evaluator != nil && answerText != "" {
		quality = c.evaluator.Evaluate(req.Query, answerText, contextChunks)
	}

	result := &model.AnswerResult{
		Answer:       answerText,
		Citations:    citations,
		Quality:      quality,
		TiersUsed:    tiersUsed,
		DecisionPath: decisionPath,
		CacheHit:     false,
		Confidence:   confidence,
		GeneratedAt:  time.Now().UTC(),
	}

	// Step 7: store in cache (fire-and-forget semantics at the cache layer).
	if useCache && c.cache != nil && answerText != "" {
		c.cache.Store(ctx, req.Query, queryVec, fingerprint, *result)
	}

	return result, nil
}

func fingerprintFor(uc model.UserContext) string {
	return fmt.Sprintf("%s|%s|%v", uc.DocumentType, uc.FolderID, uc.ExcludePrivileged)
}
