package answer

import (
	"context"
	"testing"

	"github.com/ragcore/retrieval-engine/internal/model"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.response, f.err
}

func sampleChunks() []model.RetrievedChunk {
	return []model.RetrievedChunk{
		{Chunk: model.Chunk{ID: "c1", Content: "Paris is the capital of France.", DocumentID: "doc-1"}, Ordinal: 1, Score: 0.9},
		{Chunk: model.Chunk{ID: "c2", Content: "The Eiffel Tower is in Paris.", DocumentID: "doc-2"}, Ordinal: 2, Score: 0.8},
	}
}

func TestGenerateExtractsCitations(t *testing.T) {
	llm := &fakeLLM{response: "Paris is the capital of France [1], and home to the Eiffel Tower [2]."}
	g := New(llm, Config{})

	result, err := g.Generate(context.Background(), "What is the capital of France?", sampleChunks())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d: %+v", len(result.Citations), result.Citations)
	}
	if result.UsedAll {
		t.Fatal("expected UsedAll false when citations were parsed")
	}
}

func TestGenerateFallsBackToAllSourcesWhenNoCitations(t *testing.T) {
	llm := &fakeLLM{response: "Paris is the capital of France."}
	g := New(llm, Config{})

	result, err := g.Generate(context.Background(), "What is the capital of France?", sampleChunks())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !result.UsedAll {
		t.Fatal("expected UsedAll true when no citations are present")
	}
	if len(result.Citations) != len(sampleChunks()) {
		t.Fatalf("expected all %d sources marked used, got %d", len(sampleChunks()), len(result.Citations))
	}
}

func TestGenerateSkipsOutOfRangeOrdinals(t *testing.T) {
	llm := &fakeLLM{response: "See [1] and also [99]."}
	g := New(llm, Config{})

	result, err := g.Generate(context.Background(), "q", sampleChunks())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Citations) != 1 {
		t.Fatalf("expected 1 valid citation, got %d", len(result.Citations))
	}
}

func TestGenerateEmptyQueryRejected(t *testing.T) {
	g := New(&fakeLLM{}, Config{})
	if _, err := g.Generate(context.Background(), "   ", sampleChunks()); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestGenerateNoChunksReturnsEmptyResult(t *testing.T) {
	g := New(&fakeLLM{response: "should not be called"}, Config{})
	result, err := g.Generate(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Answer != "" || !result.UsedAll {
		t.Fatalf("expected empty result with no chunks, got %+v", result)
	}
}

func TestGeneratePropagatesGenerationFailed(t *testing.T) {
	llm := &fakeLLM{err: context.DeadlineExceeded}
	g := New(llm, Config{})
	if _, err := g.Generate(context.Background(), "q", sampleChunks()); err == nil {
		t.Fatal("expected generation error to propagate")
	}
}
