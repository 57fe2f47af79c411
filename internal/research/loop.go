package research

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcburst/deepresearch/internal/webscrape"
)

var loopTracer trace.Tracer = otel.Tracer("deepresearch/internal/research/loop")

// Searcher and Scraper are the C3/C4 capabilities the driver fans out
// over. They are narrowed here to the exact calls the loop needs so that
// tests can supply fakes without importing the concrete adapter packages.
type Searcher interface {
	Discover(ctx context.Context, query string, num int) ([]SearchHit, error)
}

type Scraper interface {
	FetchAll(ctx context.Context, urls []string) webscrape.BulkResult
}

// OnFinish is invoked once the final answer has been fully streamed, for
// assistant-message assembly and persistence into the external chat store
// (spec §4.C11 STREAM_ANSWER). Errors are logged and otherwise ignored;
// the client has already received the answer (spec §7.6).
type OnFinish func(ctx context.Context, finalText string) error

// Driver is the agent loop driver (spec §4.C11), the heart of the system.
// It owns no per-request state itself; SystemContext is passed in and
// mutated by the driver as the single writer.
type Driver struct {
	Guardrail  *Guardrail
	Rewriter   *Rewriter
	Evaluator  *Evaluator
	Answerer   *Answerer
	Summarizer *Summarizer
	Search     Searcher
	Scrape     Scraper

	MaxSteps           int
	SearchResultsCount int

	Logger *slog.Logger
}

// Run executes GUARD -> LOOP{PLAN -> FANOUT -> EVAL} -> STREAM_ANSWER for
// one request and returns the fully assembled answer text.
func (d *Driver) Run(ctx context.Context, question string, sctx *SystemContext, sink Sink, onFinish OnFinish) (string, error) {
	ctx, span := loopTracer.Start(ctx, "Driver.Run")
	defer span.End()

	if result, err := d.Guardrail.Classify(ctx, sctx); err != nil {
		d.Logger.Warn("guardrail classifier failed, failing open", "error", err)
	} else if result.Classification == ClassificationRefuse {
		span.SetAttributes(attribute.Bool("research.refused", true))
		text, aerr := d.Answerer.Answer(ctx, refusalPrompt(result.Reason), NewSystemContext(sctx.locationHints(), sctx.messages), true, sink)
		if aerr != nil {
			sink.Emit(errorEvent(aerr.Error()))
			return text, aerr
		}
		d.finish(ctx, onFinish, text)
		return text, nil
	}

	if d.MaxSteps <= 0 {
		text, err := d.answerFinal(ctx, question, sctx, sink)
		if err != nil {
			return text, err
		}
		d.finish(ctx, onFinish, text)
		return text, nil
	}

	for sctx.currentStep() < d.MaxSteps {
		action, err := d.runStep(ctx, question, sctx, sink)
		if err != nil {
			sink.Emit(errorEvent(err.Error()))
			// Planner failures are fail-closed: emit error, then attempt a
			// last-ditch best-effort answer from whatever history exists
			// (spec §4.C11 "Failure semantics").
			text, aerr := d.answerFinal(ctx, question, sctx, sink)
			if aerr != nil {
				return text, fmt.Errorf("loop terminated: %w (answer fallback also failed: %v)", err, aerr)
			}
			d.finish(ctx, onFinish, text)
			return text, nil
		}

		if action.Type == ActionAnswer {
			text, aerr := d.Answerer.Answer(ctx, question, sctx, false, sink)
			if aerr != nil {
				sink.Emit(errorEvent(aerr.Error()))
				return text, aerr
			}
			d.finish(ctx, onFinish, text)
			return text, nil
		}

		sink.Emit(actionUpdateEvent(sctx.currentStep(), "completed", ""))
		sctx.incrementStep()
	}

	text, err := d.answerFinal(ctx, question, sctx, sink)
	if err != nil {
		return text, err
	}
	d.finish(ctx, onFinish, text)
	return text, nil
}

func (d *Driver) answerFinal(ctx context.Context, question string, sctx *SystemContext, sink Sink) (string, error) {
	text, err := d.Answerer.Answer(ctx, question, sctx, true, sink)
	if err != nil {
		sink.Emit(errorEvent(err.Error()))
	}
	return text, err
}

func (d *Driver) finish(ctx context.Context, onFinish OnFinish, text string) {
	if onFinish == nil {
		return
	}
	if err := onFinish(ctx, text); err != nil {
		d.Logger.Warn("onFinish persistence failed", "error", err)
	}
}

// runStep executes one PLAN -> FANOUT -> EVAL cycle and returns the
// evaluator's decision.
func (d *Driver) runStep(ctx context.Context, question string, sctx *SystemContext, sink Sink) (Action, error) {
	step := sctx.currentStep()
	ctx, span := loopTracer.Start(ctx, "Driver.runStep")
	defer span.End()
	span.SetAttributes(attribute.Int("research.step", step))

	sink.Emit(planningEvent("Planning next search queries", "Deciding what to search for given the question and prior feedback"))

	plan, err := d.Rewriter.Rewrite(ctx, question, sctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Action{}, err
	}
	sink.Emit(queriesGeneratedEvent(plan))

	entries := d.fanout(ctx, step, plan.Queries, sctx, sink)
	for _, e := range entries {
		deduped := sctx.recordSearch(e)
		_ = deduped
	}

	sources := sourcesFromHistory(sctx, step, len(entries))
	sink.Emit(sourcesFoundEvent(step, sources))

	action, err := d.Evaluator.Evaluate(ctx, question, sctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Action{}, err
	}
	sctx.recordFeedback(action.Feedback)
	sink.Emit(newActionEvent(action))
	sink.Emit(evaluatorFeedbackEvent(action.Feedback, action.Type))

	span.SetStatus(codes.Ok, "completed")
	return action, nil
}

// fanout runs FANOUT for one step: N queries concurrently, each with its
// own search -> scrape -> summarize sub-pipeline, joined by a barrier
// before returning (spec §4.C11, §5).
func (d *Driver) fanout(ctx context.Context, step int, queries []string, sctx *SystemContext, sink Sink) []SearchHistoryEntry {
	entries := make([]SearchHistoryEntry, len(queries))
	ok := make([]bool, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			entry, succeeded := d.runQuery(ctx, i, q, sctx, sink)
			entries[i] = entry
			ok[i] = succeeded
		}(i, q)
	}
	wg.Wait()

	settled := make([]SearchHistoryEntry, 0, len(queries))
	for i, succeeded := range ok {
		if succeeded {
			settled = append(settled, entries[i])
		}
	}
	return settled
}

// runQuery runs one query's search -> scrape -> summarize sub-pipeline.
// A query-level failure does not abort the fan-out; it is reported via a
// search-update{error} event and simply omitted from the step's history.
func (d *Driver) runQuery(ctx context.Context, idx int, query string, sctx *SystemContext, sink Sink) (SearchHistoryEntry, bool) {
	sink.Emit(searchUpdateEvent(idx, query, SearchLoading, ""))

	hits, err := d.Search.Discover(ctx, query, d.SearchResultsCount)
	if err != nil {
		sink.Emit(searchUpdateEvent(idx, query, SearchError, describeSearchErr(err)))
		return SearchHistoryEntry{}, false
	}

	n := d.SearchResultsCount
	if n <= 0 || n > len(hits) {
		n = len(hits)
	}
	top := hits[:n]

	urls := make([]string, len(top))
	for i, h := range top {
		urls[i] = h.URL
	}
	bulk := d.Scrape.FetchAll(ctx, urls)

	byURL := make(map[string]webscrape.PageResult, len(bulk.Results))
	for _, r := range bulk.Results {
		byURL[r.URL] = r
	}

	results := make([]SearchResult, len(top))
	var wg sync.WaitGroup
	for i, hit := range top {
		wg.Add(1)
		go func(i int, hit SearchHit) {
			defer wg.Done()
			page := byURL[CanonicalizeURL(hit.URL)]
			scraped := ""
			if page.Success {
				scraped = page.Text
			}
			summary := d.Summarizer.Summarize(ctx, SummarizeInput{
				Query:               query,
				URL:                 hit.URL,
				Title:               hit.Title,
				Snippet:             hit.Snippet,
				ScrapedContent:      scraped,
				ConversationHistory: sctx.messageHistoryText(),
			})
			results[i] = SearchResult{
				Date:           hit.Date,
				Title:          hit.Title,
				URL:            hit.URL,
				Snippet:        hit.Snippet,
				ScrapedContent: scraped,
				Summary:        summary,
			}
		}(i, hit)
	}
	wg.Wait()

	sink.Emit(searchUpdateEvent(idx, query, SearchCompleted, ""))
	return SearchHistoryEntry{Query: query, Results: results}, true
}

func describeSearchErr(err error) string {
	return err.Error()
}

func sourcesFromHistory(sctx *SystemContext, step int, stepEntryCount int) []Source {
	if stepEntryCount == 0 || len(sctx.searchHistory) == 0 {
		return nil
	}
	start := len(sctx.searchHistory) - stepEntryCount
	if start < 0 {
		start = 0
	}

	var results []SearchResult
	for _, entry := range sctx.searchHistory[start:] {
		results = append(results, entry.Results...)
	}

	// Most recent first; results with an unparsable or missing date sort
	// last rather than clustering at the front as zero-value timestamps.
	sort.SliceStable(results, func(i, j int) bool {
		di, dj := parseResultDate(results[i].Date), parseResultDate(results[j].Date)
		if di.IsZero() != dj.IsZero() {
			return dj.IsZero()
		}
		return di.After(dj)
	})

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Snippet,
			Favicon: Favicon(r.URL),
		}
	}
	return sources
}

func refusalPrompt(reason string) string {
	if reason == "" {
		return "Explain briefly that this request cannot be fulfilled."
	}
	return "Explain briefly that this request cannot be fulfilled. Reason: " + reason
}
