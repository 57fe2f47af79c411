package research

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcburst/deepresearch/internal/cache"
	"github.com/arcburst/deepresearch/internal/llm"
)

var summarizerTracer trace.Tracer = otel.Tracer("deepresearch/internal/research/summarizer")

// SummarizeInput is the full per-page input to the summarizer, matching
// spec §4.C5's cache key (including conversation history).
type SummarizeInput struct {
	Query               string
	URL                 string
	Title               string
	Snippet             string
	ScrapedContent      string
	ConversationHistory string
}

// Summarizer is the per-page LLM synthesis stage (spec §4.C5).
type Summarizer struct {
	Provider llm.Provider
	Model    string

	// Cache fronts Summarize, keyed on the full per-page input including
	// conversation history (spec §4.C5's cache key, §2 "Cache C2 fronts
	// C3/C4/C5"). Nil disables caching.
	Cache *cache.Cache
}

// Summarize distills one scraped page into a query-relevant synthesis. It
// never propagates an LLM failure: on empty content or LLM error it falls
// back to the snippet (spec §4.C5, §8 law "Fallback summary"). The
// fallback itself is never written to the cache, so a transient LLM
// outage doesn't poison the entry for the whole TTL.
func (s *Summarizer) Summarize(ctx context.Context, in SummarizeInput) string {
	ctx, span := summarizerTracer.Start(ctx, "Summarizer.Summarize")
	defer span.End()
	span.SetAttributes(attribute.String("research.url", in.URL))

	if strings.TrimSpace(in.ScrapedContent) == "" {
		span.SetStatus(codes.Ok, "empty content, used snippet")
		return in.Snippet
	}

	text, err := s.generate(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "llm failure, fell back to snippet")
		return in.Snippet
	}

	span.SetStatus(codes.Ok, "completed")
	return text
}

// generate runs the LLM call, fronted by Cache when set, and returns the
// raw result with no fallback applied.
func (s *Summarizer) generate(ctx context.Context, in SummarizeInput) (string, error) {
	if s.Cache == nil {
		return s.callLLM(ctx, in)
	}
	key := cache.Key("summarize",
		cache.KV{Key: "query", Value: in.Query},
		cache.KV{Key: "url", Value: in.URL},
		cache.KV{Key: "title", Value: in.Title},
		cache.KV{Key: "snippet", Value: in.Snippet},
		cache.KV{Key: "scrapedContent", Value: in.ScrapedContent},
		cache.KV{Key: "conversationHistory", Value: in.ConversationHistory},
	)
	return s.Cache.Fetch(ctx, key, func() (string, error) { return s.callLLM(ctx, in) })
}

func (s *Summarizer) callLLM(ctx context.Context, in SummarizeInput) (string, error) {
	prompt := buildSummarizerPrompt(in)
	text, _, err := s.Provider.Generate(ctx, s.Model, []llm.ChatMessage{
		{Role: "system", Content: summarizerSystemPrompt},
		{Role: "user", Content: prompt},
	}, llm.CompleteOptions{Temperature: 0.2})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptySummary
	}
	return text, nil
}

const summarizerSystemPrompt = `You distill one scraped web page into a concise, query-relevant synthesis. ` +
	`Preserve original units, dates, and contextual anchors exactly as stated. Use only the provided page ` +
	`content and conversation history; never introduce outside knowledge. Write plain prose, no headers.`

func buildSummarizerPrompt(in SummarizeInput) string {
	var b strings.Builder
	b.WriteString("Query: ")
	b.WriteString(in.Query)
	b.WriteString("\nPage title: ")
	b.WriteString(in.Title)
	b.WriteString("\nPage URL: ")
	b.WriteString(in.URL)
	b.WriteString("\nSearch snippet: ")
	b.WriteString(in.Snippet)
	if in.ConversationHistory != "" {
		b.WriteString("\nConversation history:\n")
		b.WriteString(in.ConversationHistory)
	}
	b.WriteString("\nScraped page content:\n")
	b.WriteString(in.ScrapedContent)
	return b.String()
}
