package research

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcburst/deepresearch/internal/llm"
)

var rewriterTracer trace.Tracer = otel.Tracer("deepresearch/internal/research/rewriter")

// Rewriter is the query rewriter LLM stage (spec §4.C6): it turns the
// user's latest question plus accumulated context into a QueryPlan of
// 3-5 search queries.
type Rewriter struct {
	Provider llm.Provider
	Model    string
}

func (r *Rewriter) rawPlan(ctx context.Context, question string, sctx *SystemContext) (QueryPlan, error) {
	prompt := buildRewriterPrompt(question, sctx)
	text, _, err := r.Provider.Generate(ctx, r.Model, []llm.ChatMessage{
		{Role: "system", Content: rewriterSystemPrompt},
		{Role: "user", Content: prompt},
	}, llm.CompleteOptions{Temperature: 0.3})
	if err != nil {
		return QueryPlan{}, fmt.Errorf("rewriter generate: %w", err)
	}
	return parseQueryPlan(text)
}

// Rewrite runs C6. A genuine Provider.Generate or parse failure retries
// once and then bubbles up as an error, terminating the loop (spec §4.C11
// "Failure semantics"). Only a query-count validation failure (fewer than 3
// or more than 5 queries) retries once and then falls back to a single
// query equal to the user's last message (spec §4.C11 tie-break a); that
// tie-break never masks a real provider error.
func (r *Rewriter) Rewrite(ctx context.Context, question string, sctx *SystemContext) (QueryPlan, error) {
	ctx, span := rewriterTracer.Start(ctx, "Rewriter.Rewrite")
	defer span.End()
	span.SetAttributes(attribute.Int("research.step", sctx.currentStep()))

	plan, err := r.rawPlan(ctx, question, sctx)
	if err != nil {
		plan, err = r.rawPlan(ctx, question, sctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return QueryPlan{}, err
		}
	}

	if verr := plan.Validate(); verr == nil {
		span.SetStatus(codes.Ok, "completed")
		return plan, nil
	}

	// Retry once on a count-validation failure only.
	retried, err := r.rawPlan(ctx, question, sctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return QueryPlan{}, err
	}
	if verr := retried.Validate(); verr == nil {
		span.SetStatus(codes.Ok, "completed after retry")
		return retried, nil
	}

	fallback := QueryPlan{Plan: "fallback to literal question", Queries: []string{question}}
	span.SetAttributes(attribute.Bool("research.rewriter_fallback", true))
	span.SetStatus(codes.Ok, "fell back to single query")
	return fallback, nil
}

func parseQueryPlan(text string) (QueryPlan, error) {
	candidate, ok := extractBalancedJSON(stripCodeFence(text))
	if !ok {
		return QueryPlan{}, &PlannerError{Stage: "rewriter", Reason: "no JSON object in response"}
	}

	var plan QueryPlan
	if err := json.Unmarshal([]byte(candidate), &plan); err != nil {
		// Lenient fallback: when strict decoding fails (e.g. a non-string
		// plan or a non-string entry in queries), keep whatever string
		// plan and string queries the same keys do hold.
		var raw map[string]interface{}
		if jerr := json.Unmarshal([]byte(candidate), &raw); jerr != nil {
			return QueryPlan{}, &PlannerError{Stage: "rewriter", Reason: "malformed JSON: " + err.Error()}
		}
		if p, ok := raw["plan"].(string); ok {
			plan.Plan = p
		}
		if qs, ok := raw["queries"].([]interface{}); ok {
			for _, q := range qs {
				if s, ok := q.(string); ok {
					plan.Queries = append(plan.Queries, s)
				}
			}
		}
	}
	return plan, nil
}

const rewriterSystemPrompt = `You are the query planning stage of a research agent. Given the user's ` +
	`question and any prior search history and evaluator feedback, produce a short plan and 3 to 5 ` +
	`concrete, non-redundant search engine queries that together would gather sufficient evidence to ` +
	`answer the question. Respond with a single JSON object: {"plan": string, "queries": [string, ...]}.`

func buildRewriterPrompt(question string, sctx *SystemContext) string {
	return fmt.Sprintf(
		"User question:\n%s\n\nConversation so far:\n%s\nPrior search history:\n%s\nLast evaluator feedback: %s\nLocation hints: %s\n",
		question, sctx.messageHistoryText(), sctx.searchHistoryText(), sctx.lastFeedback(), sctx.locationHints(),
	)
}
