package embedregistry

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
)

const (
	localMaxBatchSize = 250
	localDim          = 384
)

// Local is a deterministic, dependency-free stand-in for a real local
// embedding model: it hashes shingles of the input text into a fixed-size
// vector and L2-normalizes it. It satisfies LocalEmbedder and is swappable
// for a model-backed implementation without changing any caller.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Dim() int { return localDim }

func (l *Local) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedregistry.Local.EmbedDocuments: no texts provided")
	}
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += localMaxBatchSize {
		end := i + localMaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		for _, t := range texts[i:end] {
			out = append(out, l2Normalize(hashEmbed(t, localDim)))
		}
	}
	return out, nil
}

func (l *Local) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embedregistry.Local.EmbedQuery: empty query")
	}
	return l2Normalize(hashEmbed(text, localDim)), nil
}

// hashEmbed builds a pseudo-embedding by hashing overlapping trigrams of the
// lowercased text and scattering each hash across the vector.
func hashEmbed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	runes := []rune(strings.ToLower(text))
	if len(runes) < 3 {
		runes = append(runes, make([]rune, 3-len(runes))...)
	}
	for i := 0; i <= len(runes)-3; i++ {
		shingle := string(runes[i : i+3])
		h := sha256.Sum256([]byte(shingle))
		for k := 0; k < 8; k++ {
			idx := int(h[k]) % dim
			sign := float32(1)
			if h[k+8]%2 == 0 {
				sign = -1
			}
			vec[idx] += sign
		}
	}
	return vec
}

func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
