package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/oauth2/google"

	"github.com/ragcore/retrieval-engine/internal/retry"
)

// VertexClient implements LLMClient over Vertex AI Gemini. Regional locations
// use the Go SDK; the "global" location falls back to the REST API since the
// SDK doesn't support it. Grounded on gcpclient/genai.go's dual-path shape.
type VertexClient struct {
	sdk        *genai.Client // nil when using the global REST path
	httpClient *http.Client  // non-nil only for the global REST path
	project    string
	location   string
	model      string
	useREST    bool
}

func NewVertexClient(ctx context.Context, project, location, model string) (*VertexClient, error) {
	if location == "global" {
		httpClient, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("answer.NewVertexClient: default credentials: %w", err)
		}
		return &VertexClient{httpClient: httpClient, project: project, location: location, model: model, useREST: true}, nil
	}

	sdk, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("answer.NewVertexClient: %w", err)
	}
	return &VertexClient{sdk: sdk, project: project, location: location, model: model}, nil
}

var _ LLMClient = (*VertexClient)(nil)

func (v *VertexClient) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return retry.Do(ctx, "answer.VertexClient.GenerateContent", func() (string, error) {
		if v.useREST {
			return v.generateREST(ctx, systemPrompt, userPrompt)
		}
		return v.generateSDK(ctx, systemPrompt, userPrompt)
	})
}

func (v *VertexClient) generateSDK(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := v.sdk.GenerativeModel(v.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("answer.VertexClient.generateSDK: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("answer.VertexClient.generateSDK: empty response from model")
	}

	var parts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

type vertexRESTRequest struct {
	Contents          []vertexRESTContent `json:"contents"`
	SystemInstruction *vertexRESTContent  `json:"systemInstruction,omitempty"`
}

type vertexRESTContent struct {
	Role  string          `json:"role"`
	Parts []vertexRESTPart `json:"parts"`
}

type vertexRESTPart struct {
	Text string `json:"text"`
}

type vertexRESTResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (v *VertexClient) generateREST(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	url := fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:generateContent",
		v.project, v.model,
	)

	reqBody := vertexRESTRequest{
		Contents: []vertexRESTContent{{Role: "user", Parts: []vertexRESTPart{{Text: userPrompt}}}},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &vertexRESTContent{Role: "user", Parts: []vertexRESTPart{{Text: systemPrompt}}}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("answer.VertexClient.generateREST: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("answer.VertexClient.generateREST: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("answer.VertexClient.generateREST: call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("answer.VertexClient.generateREST: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("answer.VertexClient.generateREST: status %d: %s", resp.StatusCode, raw)
	}

	var parsed vertexRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("answer.VertexClient.generateREST: decode: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("answer.VertexClient.generateREST: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("answer.VertexClient.generateREST: empty response from model")
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
