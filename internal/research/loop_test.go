package research

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcburst/deepresearch/internal/llm"
	"github.com/arcburst/deepresearch/internal/webscrape"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeProvider is a stand-in llm.Provider whose behavior is fully
// controlled by the test via generateFn/streamFn, grounded on the
// teacher's fake-provider pattern in factories_test.go.
type fakeProvider struct {
	generateFn func(ctx context.Context, messages []llm.ChatMessage) (string, error)
	streamFn   func(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) error
	calls      int
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Generate(ctx context.Context, model string, messages []llm.ChatMessage, opts llm.CompleteOptions) (string, *llm.TokenUsage, error) {
	f.calls++
	text, err := f.generateFn(ctx, messages)
	return text, nil, err
}

func (f *fakeProvider) Stream(ctx context.Context, model string, messages []llm.ChatMessage, opts llm.CompleteOptions, chunks chan<- string) (*llm.TokenUsage, error) {
	if f.streamFn == nil {
		chunks <- "answer"
		return nil, nil
	}
	return nil, f.streamFn(ctx, messages, chunks)
}

func constProvider(text string) *fakeProvider {
	return &fakeProvider{generateFn: func(ctx context.Context, messages []llm.ChatMessage) (string, error) { return text, nil }}
}

func errProvider(err error) *fakeProvider {
	return &fakeProvider{generateFn: func(ctx context.Context, messages []llm.ChatMessage) (string, error) { return "", err }}
}

// fakeSearcher implements the Searcher interface runStep/fanout need.
type fakeSearcher struct {
	discoverFn func(ctx context.Context, query string, num int) ([]SearchHit, error)
}

func (f *fakeSearcher) Discover(ctx context.Context, query string, num int) ([]SearchHit, error) {
	return f.discoverFn(ctx, query, num)
}

// fakeScraper implements the Scraper interface; every URL "succeeds" with
// "scraped:<url>" as text and "title:<url>" as title unless told otherwise.
type fakeScraper struct {
	fetchAllFn func(ctx context.Context, urls []string) webscrape.BulkResult
}

func (f *fakeScraper) FetchAll(ctx context.Context, urls []string) webscrape.BulkResult {
	if f.fetchAllFn != nil {
		return f.fetchAllFn(ctx, urls)
	}
	results := make([]webscrape.PageResult, len(urls))
	for i, u := range urls {
		results[i] = webscrape.PageResult{URL: u, Success: true, Text: "scraped:" + u, Title: "title:" + u}
	}
	return webscrape.BulkResult{Results: results, Success: true}
}

// fakeSink records every emitted event in order.
type fakeSink struct {
	events []StreamEvent
}

func (f *fakeSink) Emit(e StreamEvent) { f.events = append(f.events, e) }

func (f *fakeSink) kinds() []EventKind {
	kinds := make([]EventKind, len(f.events))
	for i, e := range f.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func newTestDriver(t *testing.T) (*Driver, *fakeSearcher, *fakeScraper) {
	t.Helper()
	searcher := &fakeSearcher{discoverFn: func(ctx context.Context, query string, num int) ([]SearchHit, error) {
		return []SearchHit{{Title: "t1", URL: "https://example.com/" + query, Snippet: "s1"}}, nil
	}}
	scraper := &fakeScraper{}
	d := &Driver{
		Guardrail:          &Guardrail{Provider: constProvider(`{"classification":"allow","reason":""}`), Model: "m"},
		Rewriter:           &Rewriter{Provider: constProvider(`{"plan":"p","queries":["q1","q2","q3"]}`), Model: "m"},
		Evaluator:          &Evaluator{Provider: constProvider(`{"type":"answer","title":"t","reasoning":"r","feedback":"f"}`), Model: "m"},
		Answerer:           &Answerer{Provider: constProvider(""), Model: "m"},
		Summarizer:         &Summarizer{Provider: constProvider(""), Model: "m"},
		Search:             searcher,
		Scrape:             scraper,
		MaxSteps:           3,
		SearchResultsCount: 1,
		Logger:             testLogger,
	}
	return d, searcher, scraper
}

func TestDriverRunHappyPath(t *testing.T) {
	d, _, _ := newTestDriver(t)
	sctx := NewSystemContext("", nil)
	sink := &fakeSink{}
	var finished string

	text, err := d.Run(context.Background(), "what is go", sctx, sink, func(ctx context.Context, finalText string) error {
		finished = finalText
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, "answer", text)
	require.Equal(t, "answer", finished)
	require.Contains(t, sink.kinds(), EventPlanning)
	require.Contains(t, sink.kinds(), EventQueriesGenerated)
	require.Contains(t, sink.kinds(), EventSourcesFound)
	require.Contains(t, sink.kinds(), EventTextDelta)
}

func TestDriverRunGuardrailRefusal(t *testing.T) {
	d, _, _ := newTestDriver(t)
	d.Guardrail.Provider = constProvider(`{"classification":"refuse","reason":"disallowed"}`)

	sctx := NewSystemContext("", nil)
	sink := &fakeSink{}

	text, err := d.Run(context.Background(), "do something bad", sctx, sink, nil)

	require.NoError(t, err)
	require.Equal(t, "answer", text)
	require.NotContains(t, sink.kinds(), EventPlanning) // loop never started
}

func TestDriverRunStepCapFallsBackToFinalAnswer(t *testing.T) {
	d, _, _ := newTestDriver(t)
	d.MaxSteps = 2
	// Evaluator always says "continue", so the loop must exhaust MaxSteps
	// and fall back to answerFinal rather than looping forever.
	d.Evaluator.Provider = constProvider(`{"type":"continue","title":"t","reasoning":"r","feedback":"keep going"}`)

	sctx := NewSystemContext("", nil)
	sink := &fakeSink{}

	text, err := d.Run(context.Background(), "deep question", sctx, sink, nil)

	require.NoError(t, err)
	require.Equal(t, "answer", text)
	require.Equal(t, 2, sctx.currentStep())
}

func TestDriverRunPlannerFailureTerminatesWithErrorEvent(t *testing.T) {
	d, _, _ := newTestDriver(t)
	d.Rewriter.Provider = errProvider(fmt.Errorf("upstream unavailable"))

	sctx := NewSystemContext("", nil)
	sink := &fakeSink{}

	_, err := d.Run(context.Background(), "what is go", sctx, sink, nil)

	require.NoError(t, err) // the loop recovers via a best-effort final answer
	require.Contains(t, sink.kinds(), EventError)
}

func TestFanoutPartialFailureOmitsFailedQueryWithoutAborting(t *testing.T) {
	d, searcher, _ := newTestDriver(t)
	searcher.discoverFn = func(ctx context.Context, query string, num int) ([]SearchHit, error) {
		if query == "bad" {
			return nil, fmt.Errorf("search provider down")
		}
		return []SearchHit{{Title: "t", URL: "https://example.com/" + query, Snippet: "s"}}, nil
	}

	sink := &fakeSink{}
	sctx := NewSystemContext("", nil)
	entries := d.fanout(context.Background(), 0, []string{"good", "bad"}, sctx, sink)

	require.Len(t, entries, 1)
	require.Equal(t, "good", entries[0].Query)

	var sawError bool
	for _, e := range sink.events {
		if e.Kind == EventSearchUpdate && e.SearchUpdate.Status == SearchError {
			sawError = true
		}
	}
	require.True(t, sawError)
}

func TestFanoutDedupsRepeatedURLsAcrossQueries(t *testing.T) {
	d, searcher, _ := newTestDriver(t)
	searcher.discoverFn = func(ctx context.Context, query string, num int) ([]SearchHit, error) {
		return []SearchHit{{Title: "t", URL: "https://example.com/same", Snippet: "s"}}, nil
	}

	sink := &fakeSink{}
	sctx := NewSystemContext("", nil)

	first, ok := d.runQuery(context.Background(), 0, "q1", sctx, sink)
	require.True(t, ok)
	sctx.recordSearch(first)
	second, ok := d.runQuery(context.Background(), 0, "q2", sctx, sink)
	require.True(t, ok)
	deduped := sctx.recordSearch(second)

	require.Len(t, deduped.Results, 0) // same canonical URL already seen
}
