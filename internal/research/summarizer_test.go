package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcburst/deepresearch/internal/llm"
)

func TestSummarizeEmptyContentReturnsSnippetWithoutCallingProvider(t *testing.T) {
	calls := 0
	s := &Summarizer{
		Provider: &fakeProvider{generateFn: func(ctx context.Context, messages []llm.ChatMessage) (string, error) {
			calls++
			return "should not be used", nil
		}},
		Model: "m",
	}

	out := s.Summarize(context.Background(), SummarizeInput{Snippet: "fallback snippet", ScrapedContent: "  "})

	require.Equal(t, "fallback snippet", out)
	require.Equal(t, 0, calls)
}

func TestSummarizeFallsBackToSnippetOnProviderError(t *testing.T) {
	s := &Summarizer{Provider: errProvider(errors.New("llm unavailable")), Model: "m"}

	out := s.Summarize(context.Background(), SummarizeInput{Snippet: "fallback snippet", ScrapedContent: "real page content"})

	require.Equal(t, "fallback snippet", out)
}

func TestSummarizeFallsBackToSnippetOnEmptyLLMResponse(t *testing.T) {
	s := &Summarizer{Provider: constProvider("   "), Model: "m"}

	out := s.Summarize(context.Background(), SummarizeInput{Snippet: "fallback snippet", ScrapedContent: "real page content"})

	require.Equal(t, "fallback snippet", out)
}

func TestSummarizeReturnsLLMOutputOnSuccess(t *testing.T) {
	s := &Summarizer{Provider: constProvider("a concise synthesis"), Model: "m"}

	out := s.Summarize(context.Background(), SummarizeInput{Snippet: "fallback snippet", ScrapedContent: "real page content"})

	require.Equal(t, "a concise synthesis", out)
}

// With no Cache configured, generate calls the provider directly and the
// fallback-inclusive Summarize is never itself cached (no Cache to poison).
func TestSummarizeNoCacheConfiguredStillFallsBackCleanly(t *testing.T) {
	s := &Summarizer{Provider: errProvider(errors.New("down")), Model: "m", Cache: nil}

	first := s.Summarize(context.Background(), SummarizeInput{Snippet: "snippet-a", ScrapedContent: "content"})
	second := s.Summarize(context.Background(), SummarizeInput{Snippet: "snippet-a", ScrapedContent: "content"})

	require.Equal(t, "snippet-a", first)
	require.Equal(t, "snippet-a", second)
}
