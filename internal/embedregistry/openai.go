package embedregistry

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ragcore/retrieval-engine/internal/retry"
)

// OpenAI is a PremiumEmbedder backed by the OpenAI embeddings API, giving the
// registry a second concrete premium embedder alongside Vertex.
type OpenAI struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

func NewOpenAI(apiKey string, model openai.EmbeddingModel, dim int) *OpenAI {
	return &OpenAI{client: openai.NewClient(apiKey), model: model, dim: dim}
}

func (o *OpenAI) Name() string { return "openai:" + string(o.model) }
func (o *OpenAI) Dim() int     { return o.dim }

func (o *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := retry.Do(ctx, "embedregistry.OpenAI.EmbedQuery", func() (openai.EmbeddingResponse, error) {
		return o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: o.model,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("embedregistry.OpenAI.EmbedQuery: %w", err)
	}
	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("embedregistry.OpenAI.EmbedQuery: expected 1 embedding, got %d", len(resp.Data))
	}
	return resp.Data[0].Embedding, nil
}
