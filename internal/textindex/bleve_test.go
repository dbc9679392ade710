package textindex

import (
	"context"
	"testing"

	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/vectorindex"
)

func TestBleveUpsertAndSearch(t *testing.T) {
	idx, err := NewBleveMemory()
	if err != nil {
		t.Fatalf("NewBleveMemory: %v", err)
	}
	ctx := context.Background()

	chunks := []model.Chunk{
		{ID: "c1", Tier: model.TierWebKB, Content: "the eiffel tower is in paris"},
		{ID: "c2", Tier: model.TierWebKB, Content: "mount fuji is in japan"},
	}
	if err := idx.Upsert(ctx, chunks); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := idx.Search(ctx, "eiffel tower paris", 5, vectorindex.Filter{Tier: model.TierWebKB})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].ChunkID != "c1" {
		t.Fatalf("expected c1 as top hit, got %+v", results)
	}
}

func TestBleveDelete(t *testing.T) {
	idx, err := NewBleveMemory()
	if err != nil {
		t.Fatalf("NewBleveMemory: %v", err)
	}
	ctx := context.Background()
	idx.Upsert(ctx, []model.Chunk{{ID: "c1", Tier: model.TierWebKB, Content: "paris france"}})
	if err := idx.Delete(ctx, []string{"c1"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	results, err := idx.Search(ctx, "paris", 5, vectorindex.Filter{Tier: model.TierWebKB})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 results after delete, got %d", len(results))
	}
}
