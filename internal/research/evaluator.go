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

var evaluatorTracer trace.Tracer = otel.Tracer("deepresearch/internal/research/evaluator")

// Evaluator is the evaluator LLM stage (spec §4.C7): decides whether the
// accumulated evidence is sufficient to answer or whether another step
// of search is needed.
type Evaluator struct {
	Provider llm.Provider
	Model    string
}

// Evaluate runs C7, validating the returned Action against spec §4.C7's
// mandatory-field rule. A Generate failure, a malformed response, or a
// missing-field Action is retried once before the failure propagates,
// mirroring Rewriter.Rewrite's retry shape; the returned error is a
// PlannerError for a malformed or missing-field response and the wrapped
// provider error for a Generate failure.
func (e *Evaluator) Evaluate(ctx context.Context, question string, sctx *SystemContext) (Action, error) {
	ctx, span := evaluatorTracer.Start(ctx, "Evaluator.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.Int("research.step", sctx.currentStep()))

	action, err := e.rawAction(ctx, question, sctx)
	if err != nil {
		action, err = e.rawAction(ctx, question, sctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Action{}, err
	}

	span.SetAttributes(attribute.String("research.action_type", action.Type.String()))
	span.SetStatus(codes.Ok, "completed")
	return action, nil
}

func (e *Evaluator) rawAction(ctx context.Context, question string, sctx *SystemContext) (Action, error) {
	prompt := buildEvaluatorPrompt(question, sctx)
	text, _, err := e.Provider.Generate(ctx, e.Model, []llm.ChatMessage{
		{Role: "system", Content: evaluatorSystemPrompt},
		{Role: "user", Content: prompt},
	}, llm.CompleteOptions{Temperature: 0.2})
	if err != nil {
		return Action{}, fmt.Errorf("evaluator generate: %w", err)
	}

	action, err := parseAction(text)
	if err != nil {
		return Action{}, err
	}
	if err := action.Validate(); err != nil {
		return Action{}, err
	}
	return action, nil
}

func parseAction(text string) (Action, error) {
	candidate, ok := extractBalancedJSON(stripCodeFence(text))
	if !ok {
		return Action{}, &PlannerError{Stage: "evaluator", Reason: "no JSON object in response"}
	}

	var raw struct {
		Type      string `json:"type"`
		Title     string `json:"title"`
		Reasoning string `json:"reasoning"`
		Feedback  string `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return Action{}, &PlannerError{Stage: "evaluator", Reason: "malformed JSON: " + err.Error()}
	}

	action := Action{
		Title:     raw.Title,
		Reasoning: raw.Reasoning,
		Feedback:  raw.Feedback,
	}
	switch raw.Type {
	case "answer":
		action.Type = ActionAnswer
	case "continue", "":
		action.Type = ActionContinue
	default:
		return Action{}, &PlannerError{Stage: "evaluator", Reason: "unknown action type " + raw.Type}
	}
	return action, nil
}

const evaluatorSystemPrompt = `You are the evidence-evaluation stage of a research agent. Decide whether ` +
	`the accumulated search history sufficiently covers every major component of the user's question with ` +
	`current, concrete evidence. Choose "answer" only when it does; otherwise choose "continue" and explain ` +
	`in feedback exactly what is missing so the next round of queries can fill the gap. Respond with a ` +
	`single JSON object: {"type": "continue"|"answer", "title": string, "reasoning": string, "feedback": string}. ` +
	`All four fields are mandatory and must be non-empty.`

func buildEvaluatorPrompt(question string, sctx *SystemContext) string {
	return fmt.Sprintf(
		"User question:\n%s\n\nSearch history so far:\n%s\nPrevious feedback: %s\n",
		question, sctx.searchHistoryText(), sctx.lastFeedback(),
	)
}
