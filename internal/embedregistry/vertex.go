package embedregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"

	"github.com/ragcore/retrieval-engine/internal/retry"
)

// Vertex is a PremiumEmbedder backed by the Vertex AI text embedding REST
// API, used to rescore local-pass candidates at query time.
type Vertex struct {
	project  string
	location string
	model    string
	dim      int
	client   *http.Client
}

func NewVertex(ctx context.Context, project, location, model string, dim int) (*Vertex, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("embedregistry.NewVertex: %w", err)
	}
	return &Vertex{project: project, location: location, model: model, dim: dim, client: client}, nil
}

func (v *Vertex) Name() string { return "vertex:" + v.model }
func (v *Vertex) Dim() int     { return v.dim }

type vertexEmbeddingRequest struct {
	Instances []vertexEmbeddingInstance `json:"instances"`
}

type vertexEmbeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type vertexEmbeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

func (v *Vertex) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := retry.Do(ctx, "embedregistry.Vertex.EmbedQuery", func() ([][]float32, error) {
		return v.doEmbed(ctx, []string{text}, "RETRIEVAL_QUERY")
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedregistry.Vertex.EmbedQuery: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

func (v *Vertex) doEmbed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]vertexEmbeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = vertexEmbeddingInstance{Content: t, TaskType: taskType}
	}
	body, err := json.Marshal(vertexEmbeddingRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("embedregistry.Vertex marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpointURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedregistry.Vertex request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedregistry.Vertex call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedregistry.Vertex: status %d: %s", resp.StatusCode, b)
	}

	var out vertexEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedregistry.Vertex decode: %w", err)
	}
	results := make([][]float32, len(out.Predictions))
	for i, p := range out.Predictions {
		results[i] = p.Embeddings.Values
	}
	return results, nil
}

func (v *Vertex) endpointURL() string {
	if v.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			v.project, v.model,
		)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		v.location, v.project, v.location, v.model,
	)
}
