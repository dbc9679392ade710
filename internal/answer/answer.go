// Package answer implements the Answer Generator (C9): builds a
// citation-annotated prompt from fused retrieval context, calls an LLM
// capability, and extracts cited ordinals from the response. Structurally
// grounded on internal/service/generator.go, generalized from the teacher's
// persona/compliance prompt layering into a single grounding-focused prompt.
package answer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
)

// LLMClient abstracts the generative model call for testability. Concrete
// adapters live in vertex.go and byollm.go.
type LLMClient interface {
	GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config tunes generation.
type Config struct {
	Model            string
	Temperature      float64
	MaxResponseToken int
	EnableReflection bool // stored only; Generate runs no refinement pass
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.MaxResponseToken == 0 {
		c.MaxResponseToken = 2048
	}
	return c
}

// Generator is the C9 answer generator.
type Generator struct {
	client LLMClient
	cfg    Config
}

func New(client LLMClient, cfg Config) *Generator {
	return &Generator{client: client, cfg: cfg.withDefaults()}
}

// Result is the output of a single generation call, before quality scoring.
type Result struct {
	Answer     string
	Citations  []model.Citation
	UsedAll    bool // true when citation parsing failed and every source counts as used
	Confidence float64
}

// Generate produces a grounded answer for query using chunks as ordinal-
// labeled context. chunks must already be truncated to the caller's token
// budget.
func (g *Generator) Generate(ctx context.Context, query string, chunks []model.RetrievedChunk) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errs.Validation("answer.Generate", fmt.Errorf("query is empty"))
	}
	if len(chunks) == 0 {
		return &Result{Answer: "", Citations: nil, UsedAll: true}, nil
	}

	systemPrompt := buildSystemPrompt()
	userPrompt := buildUserPrompt(query, chunks)

	raw, err := g.client.GenerateContent(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, errs.GenerationFailed("answer.Generate", err)
	}

	citations, usedAll := extractCitations(raw, chunks)
	return &Result{
		Answer:     raw,
		Citations:  citations,
		UsedAll:    usedAll,
		Confidence: confidenceFrom(citations, chunks),
	}, nil
}

const systemPromptTemplate = `You answer questions using only the numbered context passages supplied below.
Rules:
- Only use the provided context to answer. Never speculate or use outside knowledge.
- Cite sources inline as [1], [2], [3], referencing the passage ordinals.
- Every factual claim must carry at least one citation.
- If the context is insufficient to answer, say so explicitly instead of guessing.`

func buildSystemPrompt() string {
	return systemPromptTemplate
}

func buildUserPrompt(query string, chunks []model.RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("=== CONTEXT ===\n")
	for _, c := range chunks {
		label := c.Chunk.SourceURL
		if label == "" {
			label = c.Chunk.DocumentID
		}
		sb.WriteString(fmt.Sprintf("[%d] (source: %s, score: %.3f)\n%s\n\n", c.Ordinal, label, c.Score, c.Chunk.Content))
	}
	sb.WriteString("=== QUESTION ===\n")
	sb.WriteString(query)
	sb.WriteString("\n")
	return sb.String()
}

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations parses bracketed ordinals out of the answer text. If none
// are found, every supplied chunk is treated as used per spec's fallback
// ("used defaults to all sources supplied").
func extractCitations(answer string, chunks []model.RetrievedChunk) ([]model.Citation, bool) {
	matches := citationRe.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		all := make([]model.Citation, 0, len(chunks))
		for _, c := range chunks {
			all = append(all, model.Citation{Ordinal: c.Ordinal, ChunkID: c.Chunk.ID, Snippet: snippet(c.Chunk.Content)})
		}
		return all, true
	}

	byOrdinal := make(map[int]model.RetrievedChunk, len(chunks))
	for _, c := range chunks {
		byOrdinal[c.Ordinal] = c
	}

	seen := make(map[int]bool)
	var citations []model.Citation
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if seen[n] {
			continue
		}
		chunk, ok := byOrdinal[n]
		if !ok {
			continue // out-of-range ordinal, skip
		}
		seen[n] = true
		citations = append(citations, model.Citation{Ordinal: n, ChunkID: chunk.Chunk.ID, Snippet: snippet(chunk.Chunk.Content)})
	}
	return citations, false
}

func snippet(content string) string {
	const maxLen = 200
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}

func confidenceFrom(citations []model.Citation, chunks []model.RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	ratio := float64(len(citations)) / float64(len(chunks))
	if ratio > 1.0 {
		ratio = 1.0
	}
	return ratio
}
