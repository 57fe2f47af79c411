// Package brave adapts the Brave Search API to the websearch.Searcher
// capability, grounded on the teacher's tools/web_search/brave/search.go.
package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/arcburst/deepresearch/internal/urlnorm"
	"github.com/arcburst/deepresearch/internal/websearch"
)

// Client calls the Brave Search web API.
type Client struct {
	APIKey     string
	HTTPClient *http.Client
}

func New(apiKey string) *Client {
	return &Client{APIKey: apiKey, HTTPClient: http.DefaultClient}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Discover implements websearch.Searcher.
func (c *Client) Discover(ctx context.Context, query string, num int) ([]websearch.Hit, error) {
	endpoint := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d", url.QueryEscape(query), num)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &websearch.SearchError{Provider: websearch.BraveProvider, Retryable: false, Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &websearch.SearchError{Provider: websearch.BraveProvider, Retryable: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &websearch.SearchError{Provider: websearch.BraveProvider, Retryable: true,
			Cause: fmt.Errorf("brave returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &websearch.SearchError{Provider: websearch.BraveProvider, Retryable: false,
			Cause: fmt.Errorf("brave returned %d", resp.StatusCode)}
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
				Age     string `json:"age"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &websearch.SearchError{Provider: websearch.BraveProvider, Retryable: false, Cause: err}
	}

	hits := make([]websearch.Hit, 0, len(raw.Web.Results))
	for i, r := range raw.Web.Results {
		if i >= num {
			break
		}
		hits = append(hits, websearch.Hit{
			Title:   r.Title,
			URL:     urlnorm.Canonicalize(r.URL),
			Snippet: r.Snippet,
			Date:    r.Age,
		})
	}
	return hits, nil
}

var _ websearch.Searcher = (*Client)(nil)
