package websearch

import (
	"context"
	"fmt"
	"net/url"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/ragcore/retrieval-engine/internal/model"
)

// CustomSearch is a SnippetProvider backed by the Google Programmable Search
// Engine API, the live-web tier's snippet source.
type CustomSearch struct {
	svc *customsearch.Service
	cx  string
}

func NewCustomSearch(ctx context.Context, apiKey, cx string) (*CustomSearch, error) {
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("websearch.NewCustomSearch: %w", err)
	}
	return &CustomSearch{svc: svc, cx: cx}, nil
}

func (c *CustomSearch) Name() string { return "google_custom_search" }

func (c *CustomSearch) Search(ctx context.Context, query string, limit int) ([]model.WebSearchResult, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	resp, err := c.svc.Cse.List().Context(ctx).Cx(c.cx).Q(query).Num(int64(limit)).Do()
	if err != nil {
		return nil, fmt.Errorf("websearch.CustomSearch.Search: %w", err)
	}

	out := make([]model.WebSearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		domain := item.DisplayLink
		if u, err := url.Parse(item.Link); err == nil && u.Host != "" {
			domain = u.Host
		}
		out = append(out, model.WebSearchResult{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			Domain:  domain,
		})
	}
	return out, nil
}
