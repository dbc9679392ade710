package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/ragcore/retrieval-engine/internal/model"
)

// HTTPExtract is the default ExtractProvider: it fetches a URL and strips
// HTML tags for a crude readable-text extraction. Spec §6.2 treats page
// extraction as a swappable boundary capability; this is the HTTP-based
// default, matching the teacher's pattern of keeping LLM/embedding backends
// as capability interfaces rather than hardcoded clients.
type HTTPExtract struct {
	client *http.Client
}

func NewHTTPExtract(client *http.Client) *HTTPExtract {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExtract{client: client}
}

var tagRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
var wsRe = regexp.MustCompile(`\s+`)

func (h *HTTPExtract) Extract(ctx context.Context, target string) (model.WebDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return model.WebDocument{}, fmt.Errorf("websearch.HTTPExtract: request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return model.WebDocument{}, fmt.Errorf("websearch.HTTPExtract: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.WebDocument{}, fmt.Errorf("websearch.HTTPExtract: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return model.WebDocument{}, fmt.Errorf("websearch.HTTPExtract: read: %w", err)
	}

	text := wsRe.ReplaceAllString(tagRe.ReplaceAllString(string(body), " "), " ")
	text = strings.TrimSpace(text)

	domain := ""
	if u, err := url.Parse(target); err == nil {
		domain = u.Hostname()
	}

	return model.WebDocument{URL: target, Domain: domain, Text: text}, nil
}
