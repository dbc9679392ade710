// Package semcache implements the semantic cache (C8): a bounded LRU of past
// query embeddings keyed by cosine similarity rather than exact hash match,
// with an optional Redis-backed durable tier so a process restart doesn't
// cold-start the cache. Structurally grounded on internal/cache/query.go
// (TTL entries, background cleanup) generalized from exact-hash keying.
package semcache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ragcore/retrieval-engine/internal/model"
)

// KVStore is the optional durable backing behind the in-memory LRU.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Scan(ctx context.Context) ([][]byte, error)
}

// Config tunes the cache.
type Config struct {
	Capacity            int
	TTL                 time.Duration
	SimilarityThreshold float64
}

func (c Config) withDefaults() Config {
	if c.Capacity == 0 {
		c.Capacity = 1000
	}
	if c.TTL == 0 {
		c.TTL = 15 * time.Minute
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.97
	}
	return c
}

// Cache is the C8 semantic cache.
type Cache struct {
	mu    sync.RWMutex
	lru   *lru.Cache[string, model.CacheEntry]
	kv    KVStore
	cfg   Config

	stopCh chan struct{}
}

func New(cfg Config, kv KVStore) (*Cache, error) {
	cfg = cfg.withDefaults()
	l, err := lru.New[string, model.CacheEntry](cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("semcache.New: %w", err)
	}
	c := &Cache{lru: l, kv: kv, cfg: cfg, stopCh: make(chan struct{})}
	go c.cleanup()
	return c, nil
}

// Lookup finds the cached entry whose query vector is most similar to
// queryVec, returning it only if similarity clears the threshold and it
// hasn't expired.
func (c *Cache) Lookup(ctx context.Context, queryVec []float32, fingerprint string) (model.CacheEntry, bool) {
	c.mu.RLock()
	keys := c.lru.Keys()
	c.mu.RUnlock()

	now := time.Now().UTC()
	var best model.CacheEntry
	bestScore := -1.0
	found := false

	for _, k := range keys {
		c.mu.RLock()
		entry, ok := c.lru.Peek(k)
		c.mu.RUnlock()
		if !ok || now.After(entry.ExpiresAt) || entry.Fingerprint != fingerprint {
			continue
		}
		score := cosine(queryVec, entry.QueryVector)
		if score >= c.cfg.SimilarityThreshold && score > bestScore {
			best, bestScore, found = entry, score, true
		}
	}

	if found {
		slog.Info("[SEMCACHE] hit", "similarity", bestScore, "key", best.Key)
		return best, true
	}

	if c.kv != nil {
		if entry, ok := c.lookupDurable(ctx, queryVec, fingerprint); ok {
			c.mu.Lock()
			c.lru.Add(entry.Key, entry)
			c.mu.Unlock()
			return entry, true
		}
	}
	return model.CacheEntry{}, false
}

func (c *Cache) lookupDurable(ctx context.Context, queryVec []float32, fingerprint string) (model.CacheEntry, bool) {
	raw, err := c.kv.Scan(ctx)
	if err != nil {
		slog.Warn("[SEMCACHE] durable scan failed", "error", err)
		return model.CacheEntry{}, false
	}
	now := time.Now().UTC()
	var best model.CacheEntry
	bestScore := -1.0
	found := false
	for _, r := range raw {
		var entry model.CacheEntry
		if err := json.Unmarshal(r, &entry); err != nil {
			continue
		}
		if now.After(entry.ExpiresAt) || entry.Fingerprint != fingerprint {
			continue
		}
		score := cosine(queryVec, entry.QueryVector)
		if score >= c.cfg.SimilarityThreshold && score > bestScore {
			best, bestScore, found = entry, score, true
		}
	}
	return best, found
}

// Store inserts a new cache entry, keyed by a content hash of the query
// text, and writes through to the durable store when configured.
func (c *Cache) Store(ctx context.Context, query string, queryVec []float32, fingerprint string, answer model.AnswerResult) {
	now := time.Now().UTC()
	entry := model.CacheEntry{
		Key:         cacheKey(query, fingerprint),
		Query:       query,
		QueryVector: queryVec,
		Answer:      answer,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.cfg.TTL),
	}

	c.mu.Lock()
	c.lru.Add(entry.Key, entry)
	c.mu.Unlock()

	if c.kv != nil {
		payload, err := json.Marshal(entry)
		if err != nil {
			slog.Warn("[SEMCACHE] marshal for durable store failed", "error", err)
			return
		}
		if err := c.kv.Set(ctx, entry.Key, payload, c.cfg.TTL); err != nil {
			slog.Warn("[SEMCACHE] durable set failed", "error", err)
		}
	}

	slog.Info("[SEMCACHE] set", "key", entry.Key, "ttl_s", int(c.cfg.TTL.Seconds()))
}

// Stop halts the background cleanup goroutine.
func (c *Cache) Stop() { close(c.stopCh) }

func (c *Cache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now().UTC()
			c.mu.Lock()
			removed := 0
			for _, k := range c.lru.Keys() {
				if entry, ok := c.lru.Peek(k); ok && now.After(entry.ExpiresAt) {
					c.lru.Remove(k)
					removed++
				}
			}
			c.mu.Unlock()
			if removed > 0 {
				slog.Info("[SEMCACHE] cleanup", "removed", removed)
			}
		case <-c.stopCh:
			return
		}
	}
}

func cacheKey(query, fingerprint string) string {
	h := sha256.Sum256([]byte(fingerprint + "|" + query))
	return fmt.Sprintf("sc:%x", h[:16])
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
