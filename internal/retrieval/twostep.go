package retrieval

import (
	"context"
	"sort"

	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/vectorindex"
)

// TwoStep (C4) wraps a HybridRetriever's approximate pass with an optional
// precise rescoring pass against a named premium embedder: the approximate
// pass finds topK candidates cheaply in the local embedding space, then the
// premium embedder's calibrated query vector re-scores just those
// candidates, which is materially cheaper than embedding the whole corpus
// with the premium model.
type TwoStep struct {
	hybrid       *HybridRetriever
	rescorer     Rescorer
	premiumName  string
}

// NewTwoStep builds a TwoStep retriever. premiumName may be empty, in which
// case Retrieve always performs the approximate pass only.
func NewTwoStep(hybrid *HybridRetriever, rescorer Rescorer, premiumName string) *TwoStep {
	return &TwoStep{hybrid: hybrid, rescorer: rescorer, premiumName: premiumName}
}

// Retrieve runs the approximate pass, then, when rescore is requested and a
// premium embedder is configured, rescoring those candidates and re-sorting.
func (t *TwoStep) Retrieve(ctx context.Context, query string, queryVec []float32, filter vectorindex.Filter, rescore bool) ([]model.RetrievedChunk, error) {
	candidates, err := t.hybrid.Retrieve(ctx, query, queryVec, filter)
	if err != nil {
		return nil, err
	}
	if !rescore || t.rescorer == nil || t.premiumName == "" || len(candidates) == 0 {
		return candidates, nil
	}

	rescored, err := t.rescorer.RescoreCandidates(ctx, t.premiumName, query, candidates)
	if err != nil {
		// Precise rescoring is an enhancement, not a hard requirement: fall
		// back to the approximate ranking rather than fail the query.
		return candidates, nil
	}
	sort.Slice(rescored, func(i, j int) bool { return rescored[i].Score > rescored[j].Score })
	for i := range rescored {
		rescored[i].Ordinal = i + 1
	}
	return rescored, nil
}
