package research

import (
	"context"

	"github.com/arcburst/deepresearch/internal/websearch"
)

// searcherAdapter narrows a websearch.Searcher to the Searcher interface
// the loop driver expects, converting websearch.Hit to the core SearchHit
// type. Kept here rather than in websearch so that package stays free of
// any dependency on internal/research.
type searcherAdapter struct {
	inner websearch.Searcher
}

// WrapSearcher adapts a concrete websearch.Searcher for use by Driver.Search.
func WrapSearcher(s websearch.Searcher) Searcher {
	return &searcherAdapter{inner: s}
}

func (a *searcherAdapter) Discover(ctx context.Context, query string, num int) ([]SearchHit, error) {
	hits, err := a.inner.Discover(ctx, query, num)
	if err != nil {
		return nil, err
	}
	out := make([]SearchHit, len(hits))
	for i, h := range hits {
		out[i] = SearchHit{Title: h.Title, URL: h.URL, Snippet: h.Snippet, Date: h.Date}
	}
	return out, nil
}
