// Package embedregistry implements the embedder registry (C1): a local
// embedder used for bulk chunk embedding, a set of named premium embedders
// used for query-time rescoring, and the calibration projection that maps a
// premium embedding into the local space so the two are comparable.
package embedregistry

import (
	"context"
	"fmt"
	"math"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
)

// LocalEmbedder embeds text into the local, low-cost embedding space used for
// bulk document indexing and the first retrieval pass.
type LocalEmbedder interface {
	Dim() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// PremiumEmbedder embeds text into a higher-quality space used only to
// rescore the local pass's candidates, never for bulk indexing.
type PremiumEmbedder interface {
	Name() string
	Dim() int
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CalibrationSource resolves the calibration matrix for a premium embedder by
// name, so rescoring can project a premium vector into local space.
type CalibrationSource interface {
	Get(name string) (model.CalibrationMatrix, bool)
}

// Registry is the C1 capability: embed chunks locally, and rescore candidates
// against a named premium embedder's query vector.
type Registry struct {
	local          LocalEmbedder
	premium        map[string]PremiumEmbedder
	calibration    CalibrationSource
	defaultPremium string
}

func New(local LocalEmbedder, calibration CalibrationSource, premium ...PremiumEmbedder) *Registry {
	m := make(map[string]PremiumEmbedder, len(premium))
	for _, p := range premium {
		m[p.Name()] = p
	}
	return &Registry{local: local, premium: m, calibration: calibration}
}

// SetDefaultPremium sets the premium embedder name used by EmbedQuery when
// the caller passes an empty premiumName.
func (r *Registry) SetDefaultPremium(name string) { r.defaultPremium = name }

// EmbedDocuments embeds chunk text in the local space, for indexing.
func (r *Registry) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := r.local.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, errs.EmbedderUnavailable("embedregistry.EmbedDocuments", err)
	}
	return vecs, nil
}

// EmbedQuery embeds a query for the first retrieval pass. If premiumName is
// empty and no default premium is configured, it returns the local
// embedding directly. Otherwise it embeds with the named (or default)
// premium embedder and projects the result into local space via that
// embedder's calibration matrix.
func (r *Registry) EmbedQuery(ctx context.Context, text string, premiumName string) ([]float32, error) {
	if premiumName == "" {
		premiumName = r.defaultPremium
	}
	if premiumName == "" {
		vec, err := r.local.EmbedQuery(ctx, text)
		if err != nil {
			return nil, errs.EmbedderUnavailable("embedregistry.EmbedQuery", err)
		}
		return vec, nil
	}

	premium, ok := r.premium[premiumName]
	if !ok {
		return nil, errs.EmbedderUnavailable("embedregistry.EmbedQuery", fmt.Errorf("unknown premium embedder %q", premiumName))
	}
	premVec, err := premium.EmbedQuery(ctx, text)
	if err != nil {
		return nil, errs.EmbedderUnavailable("embedregistry.EmbedQuery", err)
	}
	matrix, ok := r.calibration.Get(premiumName)
	if !ok {
		return nil, errs.EmbedderUnavailable("embedregistry.EmbedQuery", fmt.Errorf("no calibration matrix for %q", premiumName))
	}
	projected, err := project(matrix, premVec)
	if err != nil {
		return nil, errs.Validation("embedregistry.EmbedQuery", err)
	}
	return l2NormalizeVec(projected), nil
}

// RescoreCandidates re-embeds the query with the named premium embedder,
// projects the result into local space via the calibration matrix, and
// returns cosine similarity against each candidate's (already local-space)
// vector. Candidates are returned in the same order, scores replaced.
func (r *Registry) RescoreCandidates(ctx context.Context, premiumName, query string, candidates []model.RetrievedChunk) ([]model.RetrievedChunk, error) {
	premium, ok := r.premium[premiumName]
	if !ok {
		return nil, errs.Validation("embedregistry.RescoreCandidates", fmt.Errorf("unknown premium embedder %q", premiumName))
	}
	premVec, err := premium.EmbedQuery(ctx, query)
	if err != nil {
		return nil, errs.EmbedderUnavailable("embedregistry.RescoreCandidates", err)
	}
	matrix, ok := r.calibration.Get(premiumName)
	if !ok {
		return nil, errs.Validation("embedregistry.RescoreCandidates", fmt.Errorf("no calibration matrix for %q", premiumName))
	}
	projected, err := project(matrix, premVec)
	if err != nil {
		return nil, errs.Validation("embedregistry.RescoreCandidates", err)
	}

	out := make([]model.RetrievedChunk, len(candidates))
	copy(out, candidates)
	for i, c := range out {
		out[i].Score = cosine(projected, c.Chunk.Embedding)
	}
	return out, nil
}

// project applies the affine map local = premium·Weights + Bias, with
// Weights stored premiumDim x localDim as calibrate.Fit produces it.
func project(m model.CalibrationMatrix, premium []float32) ([]float32, error) {
	if len(premium) != m.PremiumDim {
		return nil, fmt.Errorf("premium vector dim %d != calibration premiumDim %d", len(premium), m.PremiumDim)
	}
	out := make([]float32, m.LocalDim)
	for i := 0; i < m.LocalDim; i++ {
		var sum float64
		for j := 0; j < m.PremiumDim; j++ {
			sum += m.Weights[j][i] * float64(premium[j])
		}
		sum += m.Bias[i]
		out[i] = float32(sum)
	}
	return out, nil
}

func l2NormalizeVec(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
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
