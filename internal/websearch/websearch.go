// Package websearch implements the web search provider (C6): snippet
// search, page extraction, a hybrid of the two, per-provider trust scoring,
// and per-provider rate limiting. Trust scoring and rate limiting are
// adapted from the teacher's per-user sliding-window rate limiter
// (internal/middleware/ratelimit.go) to per-provider keys.
package websearch

import (
	"context"
	"sync"
	"time"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
)

// SnippetProvider returns ranked snippet hits for a query, e.g. a search
// engine API.
type SnippetProvider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]model.WebSearchResult, error)
}

// ExtractProvider fetches and extracts the readable text of a URL.
type ExtractProvider interface {
	Extract(ctx context.Context, url string) (model.WebDocument, error)
}

// TrustConfig controls how a result's source domain maps to a trust score:
// a blocked domain is dropped, a listed trusted domain gets its own score,
// and any other domain gets DefaultScore (0.5 when DefaultScore is 0).
type TrustConfig struct {
	TrustedDomains map[string]float64 `yaml:"trustedDomains"`
	BlockedDomains []string           `yaml:"blockedDomains"`
	DefaultScore   float64            `yaml:"defaultScore"`
}

func (c TrustConfig) scoreFor(domain string) (score float64, blocked bool) {
	for _, b := range c.BlockedDomains {
		if b == domain {
			return 0, true
		}
	}
	if s, ok := c.TrustedDomains[domain]; ok {
		return s, false
	}
	if c.DefaultScore == 0 {
		return 0.5, false
	}
	return c.DefaultScore, false
}

// Hybrid is the C6 capability: it searches via a SnippetProvider, scores and
// filters results by domain trust, and can extract full text via an
// ExtractProvider, all under a per-provider rate limit.
type Hybrid struct {
	snippet SnippetProvider
	extract ExtractProvider
	trust   TrustConfig
	limiter *RateLimiter
}

func NewHybrid(snippet SnippetProvider, extract ExtractProvider, trust TrustConfig, limiter *RateLimiter) *Hybrid {
	return &Hybrid{snippet: snippet, extract: extract, trust: trust, limiter: limiter}
}

// Search returns trust-scored, non-blocked results, subject to the
// provider's rate limit.
func (h *Hybrid) Search(ctx context.Context, query string, limit int) ([]model.WebSearchResult, error) {
	if allowed, retryAfter := h.limiter.Allow(h.snippet.Name()); !allowed {
		return nil, errs.RateLimited("websearch.Hybrid.Search", retryAfterErr(retryAfter))
	}

	results, err := h.snippet.Search(ctx, query, limit)
	if err != nil {
		return nil, errs.ProviderTimeout("websearch.Hybrid.Search", err)
	}

	out := make([]model.WebSearchResult, 0, len(results))
	for _, r := range results {
		score, blocked := h.trust.scoreFor(r.Domain)
		if blocked {
			continue
		}
		r.TrustScore = score
		out = append(out, r)
	}
	return out, nil
}

// Extract fetches a result's full text, subject to the same rate limit.
func (h *Hybrid) Extract(ctx context.Context, result model.WebSearchResult) (model.WebDocument, error) {
	if allowed, retryAfter := h.limiter.Allow(h.snippet.Name()); !allowed {
		return model.WebDocument{}, errs.RateLimited("websearch.Hybrid.Extract", retryAfterErr(retryAfter))
	}
	doc, err := h.extract.Extract(ctx, result.URL)
	if err != nil {
		return model.WebDocument{}, errs.ProviderTimeout("websearch.Hybrid.Extract", err)
	}
	doc.RetrievedAt = time.Now().UTC()
	return doc, nil
}

type retryAfterErr int

func (e retryAfterErr) Error() string { return "rate limited" }

// RateLimiter is a per-provider sliding window limiter, the same shape as
// the teacher's per-user limiter keyed by provider name instead of user id.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	windows map[string][]time.Time
	nowFunc func() time.Time
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		windows:     make(map[string][]time.Time),
		nowFunc:     time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	cutoff := now.Add(-rl.window)
	rl.windows[key] = pruneExpired(rl.windows[key], cutoff)

	timestamps := rl.windows[key]
	if len(timestamps) >= rl.maxRequests {
		oldest := timestamps[0]
		retryAfter := int(oldest.Add(rl.window).Sub(now).Seconds()) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter
	}

	rl.windows[key] = append(timestamps, now)
	return true, 0
}

func pruneExpired(timestamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for _, t := range timestamps {
		if !t.Before(cutoff) {
			timestamps[idx] = t
			idx++
		}
	}
	return timestamps[:idx]
}
