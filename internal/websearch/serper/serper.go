// Package serper adapts the Serper.dev Google search API to the
// websearch.Searcher capability, grounded on the teacher's
// tools/web_search/serper/search.go.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arcburst/deepresearch/internal/urlnorm"
	"github.com/arcburst/deepresearch/internal/websearch"
)

const endpoint = "https://google.serper.dev/search"

// Client calls the Serper.dev search endpoint.
type Client struct {
	APIKey     string
	HTTPClient *http.Client
}

// New builds a Client with a default HTTP client if none is supplied.
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
	payload, err := json.Marshal(map[string]any{"q": query, "num": num})
	if err != nil {
		return nil, &websearch.SearchError{Provider: websearch.SerperProvider, Retryable: false, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &websearch.SearchError{Provider: websearch.SerperProvider, Retryable: false, Cause: err}
	}
	req.Header.Set("X-API-KEY", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &websearch.SearchError{Provider: websearch.SerperProvider, Retryable: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &websearch.SearchError{Provider: websearch.SerperProvider, Retryable: true,
			Cause: fmt.Errorf("serper returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &websearch.SearchError{Provider: websearch.SerperProvider, Retryable: false,
			Cause: fmt.Errorf("serper returned %d", resp.StatusCode)}
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &websearch.SearchError{Provider: websearch.SerperProvider, Retryable: false, Cause: err}
	}

	hits := make([]websearch.Hit, 0, len(raw.Organic))
	for i, item := range raw.Organic {
		if i >= num {
			break
		}
		hits = append(hits, websearch.Hit{
			Title:   item.Title,
			URL:     urlnorm.Canonicalize(item.Link),
			Snippet: item.Snippet,
			Date:    item.Date,
		})
	}
	return hits, nil
}

var _ websearch.Searcher = (*Client)(nil)
