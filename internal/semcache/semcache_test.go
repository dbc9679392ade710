package semcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ragcore/retrieval-engine/internal/model"
)

func TestCacheLookupMissThenHit(t *testing.T) {
	c, err := New(Config{SimilarityThreshold: 0.9}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Stop()

	ctx := context.Background()
	vec := []float32{1, 0, 0}
	if _, ok := c.Lookup(ctx, vec, "fp"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Store(ctx, "what is paris", vec, "fp", model.AnswerResult{Answer: "a city"})

	entry, ok := c.Lookup(ctx, vec, "fp")
	if !ok {
		t.Fatal("expected hit for identical vector")
	}
	if entry.Answer.Answer != "a city" {
		t.Fatalf("unexpected cached answer: %+v", entry.Answer)
	}
}

func TestCacheLookupRespectsFingerprint(t *testing.T) {
	c, err := New(Config{SimilarityThreshold: 0.9}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Stop()

	ctx := context.Background()
	vec := []float32{1, 0, 0}
	c.Store(ctx, "q", vec, "fp-a", model.AnswerResult{Answer: "a"})

	if _, ok := c.Lookup(ctx, vec, "fp-b"); ok {
		t.Fatal("expected miss for mismatched fingerprint")
	}
}

func TestCacheDurableBackingRoundtrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test:")

	c, err := New(Config{SimilarityThreshold: 0.9, Capacity: 1}, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Stop()

	ctx := context.Background()
	vecA := []float32{1, 0, 0}
	vecB := []float32{0, 1, 0}
	c.Store(ctx, "qa", vecA, "fp", model.AnswerResult{Answer: "answer-a"})
	// Evict "qa" from the in-memory LRU (capacity 1) by storing a second entry.
	c.Store(ctx, "qb", vecB, "fp", model.AnswerResult{Answer: "answer-b"})

	entry, ok := c.Lookup(ctx, vecA, "fp")
	if !ok {
		t.Fatal("expected durable lookup to find evicted entry")
	}
	if entry.Answer.Answer != "answer-a" {
		t.Fatalf("unexpected durable answer: %+v", entry.Answer)
	}
}

func TestCacheExpiry(t *testing.T) {
	c, err := New(Config{SimilarityThreshold: 0.9, TTL: time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Stop()

	ctx := context.Background()
	vec := []float32{1, 0, 0}
	c.Store(ctx, "q", vec, "fp", model.AnswerResult{Answer: "a"})
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Lookup(ctx, vec, "fp"); ok {
		t.Fatal("expected expired entry to miss")
	}
}
