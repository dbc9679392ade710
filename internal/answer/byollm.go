package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ragcore/retrieval-engine/internal/retry"
)

// BYOLLMClient implements LLMClient for any OpenAI-chat-completions-compatible
// provider (OpenRouter, self-hosted gateways, etc). Grounded on
// gcpclient/byollm.go.
type BYOLLMClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewBYOLLMClient(apiKey, baseURL, model string) *BYOLLMClient {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &BYOLLMClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ LLMClient = (*BYOLLMClient)(nil)

type byoChatRequest struct {
	Model       string           `json:"model"`
	Messages    []byoChatMessage `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

type byoChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type byoChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *BYOLLMClient) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return retry.Do(ctx, "answer.BYOLLMClient.GenerateContent", func() (string, error) {
		return c.doGenerate(ctx, systemPrompt, userPrompt)
	})
}

func (c *BYOLLMClient) doGenerate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := byoChatRequest{
		Model:       c.model,
		MaxTokens:   4096,
		Temperature: 0.3,
		Messages: []byoChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("answer.BYOLLMClient: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("answer.BYOLLMClient: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("answer.BYOLLMClient: call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("answer.BYOLLMClient: read: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("answer.BYOLLMClient: auth failed: %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("answer.BYOLLMClient: rate limited")
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("answer.BYOLLMClient: server error: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("answer.BYOLLMClient: unexpected status %d", resp.StatusCode)
	}

	var parsed byoChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("answer.BYOLLMClient: decode: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("answer.BYOLLMClient: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("answer.BYOLLMClient: empty response")
	}
	return parsed.Choices[0].Message.Content, nil
}
