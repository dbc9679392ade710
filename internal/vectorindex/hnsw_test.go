package vectorindex

import (
	"context"
	"testing"

	"github.com/ragcore/retrieval-engine/internal/model"
)

func TestHNSWUpsertAndSearch(t *testing.T) {
	idx := NewHNSW()
	ctx := context.Background()

	chunks := []model.Chunk{
		{ID: "a", Tier: model.TierCurated, Embedding: []float32{1, 0, 0}},
		{ID: "b", Tier: model.TierCurated, Embedding: []float32{0, 1, 0}},
		{ID: "c", Tier: model.TierCurated, Embedding: []float32{0.9, 0.1, 0}},
	}
	if err := idx.Upsert(ctx, chunks); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2, Filter{Tier: model.TierCurated})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "a" {
		t.Fatalf("expected closest match 'a' first, got %q", results[0].ChunkID)
	}
}

func TestHNSWDeleteRemovesFromResults(t *testing.T) {
	idx := NewHNSW()
	ctx := context.Background()
	idx.Upsert(ctx, []model.Chunk{{ID: "a", Tier: model.TierCurated, Embedding: []float32{1, 0, 0}}})
	idx.Delete(ctx, []string{"a"})

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5, Filter{Tier: model.TierCurated})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 results after delete, got %d", len(results))
	}
}

func TestHNSWFilterExcludesPrivileged(t *testing.T) {
	idx := NewHNSW()
	ctx := context.Background()
	idx.Upsert(ctx, []model.Chunk{
		{ID: "priv", Tier: model.TierCurated, Embedding: []float32{1, 0, 0}, IsPrivileged: true},
	})
	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5, Filter{Tier: model.TierCurated, ExcludePrivileged: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected privileged chunk filtered out, got %d results", len(results))
	}
}
