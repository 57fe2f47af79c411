// Package factory builds a websearch.Searcher from a provider name,
// grounded on the teacher's tools/web_search.NewWebSearcher switch. It is
// kept separate from internal/websearch itself so the provider
// sub-packages (serper, brave) can depend on the shared types without
// creating an import cycle.
package factory

import (
	"fmt"

	"github.com/arcburst/deepresearch/internal/websearch"
	"github.com/arcburst/deepresearch/internal/websearch/brave"
	"github.com/arcburst/deepresearch/internal/websearch/serper"
)

// New builds the concrete Searcher named by provider.
func New(provider websearch.Provider, apiKey string) (websearch.Searcher, error) {
	switch provider {
	case websearch.SerperProvider:
		return serper.New(apiKey), nil
	case websearch.BraveProvider:
		return brave.New(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported search provider %q", provider)
	}
}
