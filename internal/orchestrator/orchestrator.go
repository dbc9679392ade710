// Package orchestrator implements the three-tier orchestrator (C7): it fans
// retrieval out across the curated, web-KB, and live-web tiers according to
// a triggering policy, fuses the per-tier results by multiplying each
// chunk's score by its tier weight (score-based; ranks are not used), and
// asynchronously promotes live-web results into the web-KB tier without
// blocking the response. Fan-out is grounded on the teacher's errgroup usage
// in internal/service/retriever.go and internal/handler/chat.go.
package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/vectorindex"
)

// TriggerMode controls when the live-web tier is consulted.
type TriggerMode string

const (
	TriggerParallel      TriggerMode = "parallel"
	TriggerOnLowConfidence TriggerMode = "on_low_confidence"
	TriggerOff           TriggerMode = "off"
)

// TierRetriever is the capability the orchestrator needs from a curated or
// web-KB tier retriever (implemented by *retrieval.TwoStep in practice).
type TierRetriever interface {
	Retrieve(ctx context.Context, query string, queryVec []float32, filter vectorindex.Filter, rescore bool) ([]model.RetrievedChunk, error)
}

// LiveWebRetriever is the capability for the live-web tier: search plus
// optional extraction, distinct from TierRetriever since it has no index to
// query and instead calls out to a live provider per request.
type LiveWebRetriever interface {
	Search(ctx context.Context, query string, limit int) ([]model.WebSearchResult, error)
}

// Promoter asynchronously ingests live-web results into the persistent
// web-KB tier; implemented over Pub/Sub so promotion never blocks the
// current query's response (spec §4.7).
type Promoter interface {
	Promote(ctx context.Context, results []model.WebSearchResult) error
}

// Config tunes tier weights and triggering.
type Config struct {
	Trigger             TriggerMode
	LowConfidenceFloor  float64 // live_web triggers when curated+web_kb confidence < floor
	TierWeights         map[model.Tier]float64
	PerTierTimeout      time.Duration
	LiveWebResultLimit  int
}

func (c Config) withDefaults() Config {
	if c.PerTierTimeout == 0 {
		c.PerTierTimeout = 8 * time.Second
	}
	if c.LiveWebResultLimit == 0 {
		c.LiveWebResultLimit = 5
	}
	if c.TierWeights == nil {
		c.TierWeights = map[model.Tier]float64{
			model.TierCurated: 1.0,
			model.TierWebKB:   0.8,
			model.TierLiveWeb: 0.6,
		}
	}
	if c.LowConfidenceFloor == 0 {
		c.LowConfidenceFloor = 0.55
	}
	return c
}

// Orchestrator (C7) is the three-tier fan-out.
type Orchestrator struct {
	curated TierRetriever
	webKB   TierRetriever
	liveWeb LiveWebRetriever
	promote Promoter
	cfg     Config
}

func New(curated, webKB TierRetriever, liveWeb LiveWebRetriever, promote Promoter, cfg Config) *Orchestrator {
	return &Orchestrator{curated: curated, webKB: webKB, liveWeb: liveWeb, promote: promote, cfg: cfg.withDefaults()}
}

// Result bundles the fused chunks with which tiers actually contributed.
type Result struct {
	Chunks    []model.RetrievedChunk
	TiersUsed []model.Tier
}

// Retrieve runs curated + web-KB in parallel always, and live-web either in
// parallel too (TriggerParallel), only after a low-confidence check
// (TriggerOnLowConfidence), or never (TriggerOff).
func (o *Orchestrator) Retrieve(ctx context.Context, query string, queryVec []float32, filter vectorindex.Filter, rescore bool) (Result, error) {
	curatedFilter := filter
	curatedFilter.Tier = model.TierCurated
	webKBFilter := filter
	webKBFilter.Tier = model.TierWebKB

	var curatedChunks, webKBChunks []model.RetrievedChunk

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gCtx, o.cfg.PerTierTimeout)
		defer cancel()
		var err error
		curatedChunks, err = o.curated.Retrieve(cctx, query, queryVec, curatedFilter, rescore)
		return err
	})
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gCtx, o.cfg.PerTierTimeout)
		defer cancel()
		var err error
		webKBChunks, err = o.webKB.Retrieve(cctx, query, queryVec, webKBFilter, rescore)
		return err
	})

	var liveResults []model.WebSearchResult
	liveTriggered := o.cfg.Trigger == TriggerParallel
	if liveTriggered {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gCtx, o.cfg.PerTierTimeout)
			defer cancel()
			var err error
			liveResults, err = o.liveWeb.Search(cctx, query, o.cfg.LiveWebResultLimit)
			return err
		})
	}

	var partialErr error
	if err := g.Wait(); err != nil {
		slog.Warn("[ORCHESTRATOR] tier fan-out degraded", "error", err)
		partialErr = errs.PartialResult(err.Error())
	}

	tiersUsed := []model.Tier{}
	if len(curatedChunks) > 0 {
		tiersUsed = append(tiersUsed, model.TierCurated)
	}
	if len(webKBChunks) > 0 {
		tiersUsed = append(tiersUsed, model.TierWebKB)
	}

	fused := weightedFuse(curatedChunks, webKBChunks, nil, o.cfg.TierWeights)
	confidence := topConfidence(fused)

	if o.cfg.Trigger == TriggerOnLowConfidence && confidence < o.cfg.LowConfidenceFloor {
		results, err := o.liveWeb.Search(ctx, query, o.cfg.LiveWebResultLimit)
		if err == nil {
			liveResults = results
			liveTriggered = true
		} else {
			slog.Warn("[ORCHESTRATOR] live web fallback failed", "error", err)
		}
	}

	if liveTriggered && len(liveResults) > 0 {
		tiersUsed = append(tiersUsed, model.TierLiveWeb)
		liveChunks := liveResultsAsChunks(liveResults)
		fused = weightedFuse(curatedChunks, webKBChunks, liveChunks, o.cfg.TierWeights)

		if o.promote != nil {
			go func() {
				pctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := o.promote.Promote(pctx, liveResults); err != nil {
					slog.Warn("[ORCHESTRATOR] async promotion failed", "error", err)
				}
			}()
		}
	}

	sort.Slice(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	for i := range fused {
		fused[i].Ordinal = i + 1
	}

	return Result{Chunks: fused, TiersUsed: tiersUsed}, partialErr
}

func liveResultsAsChunks(results []model.WebSearchResult) []model.RetrievedChunk {
	out := make([]model.RetrievedChunk, len(results))
	for i, r := range results {
		out[i] = model.RetrievedChunk{
			Chunk: model.Chunk{
				ID:         "live:" + r.URL,
				DocumentID: r.URL,
				Content:    r.Snippet,
				SourceURL:  &r.URL,
			},
			Tier:  model.TierLiveWeb,
			Score: r.TrustScore,
		}
	}
	return out
}

// weightedFuse merges per-tier ranked chunks, multiplying each chunk's score
// by its tier's weight so a curated hit outranks an equally-scored live-web
// hit, per spec §4.7's weighted fusion.
func weightedFuse(curated, webKB, liveWeb []model.RetrievedChunk, weights map[model.Tier]float64) []model.RetrievedChunk {
	out := make([]model.RetrievedChunk, 0, len(curated)+len(webKB)+len(liveWeb))
	apply := func(chunks []model.RetrievedChunk, tier model.Tier) {
		w := weights[tier]
		if w == 0 {
			w = 1.0
		}
		for _, c := range chunks {
			c.Score *= w
			out = append(out, c)
		}
	}
	apply(curated, model.TierCurated)
	apply(webKB, model.TierWebKB)
	apply(liveWeb, model.TierLiveWeb)
	return out
}

func topConfidence(chunks []model.RetrievedChunk) float64 {
	top := 0.0
	for _, c := range chunks {
		if c.Score > top {
			top = c.Score
		}
	}
	return top
}
