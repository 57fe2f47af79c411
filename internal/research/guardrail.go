package research

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcburst/deepresearch/internal/llm"
)

var guardrailTracer trace.Tracer = otel.Tracer("deepresearch/internal/research/guardrail")

// Classification is the guardrail's binary verdict (spec §4.C9).
type Classification string

const (
	ClassificationAllow  Classification = "allow"
	ClassificationRefuse Classification = "refuse"
)

// GuardrailResult is the guardrail's output.
type GuardrailResult struct {
	Classification Classification
	Reason         string
}

// Guardrail is the pre-loop safety classifier (spec §4.C9).
type Guardrail struct {
	Provider llm.Provider
	Model    string
}

// Classify runs C9. On classifier error it fails open: the loop proceeds
// and the error is logged by the caller (spec §7, §9 "fail-open vs
// fail-closed").
func (g *Guardrail) Classify(ctx context.Context, sctx *SystemContext) (GuardrailResult, error) {
	ctx, span := guardrailTracer.Start(ctx, "Guardrail.Classify")
	defer span.End()

	text, _, err := g.Provider.Generate(ctx, g.Model, []llm.ChatMessage{
		{Role: "system", Content: guardrailSystemPrompt},
		{Role: "user", Content: sctx.messageHistoryText()},
	}, llm.CompleteOptions{Temperature: 0})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GuardrailResult{Classification: ClassificationAllow}, err
	}

	result, perr := parseGuardrailResult(text)
	if perr != nil {
		span.RecordError(perr)
		span.SetStatus(codes.Error, perr.Error())
		return GuardrailResult{Classification: ClassificationAllow}, perr
	}

	span.SetAttributes(attribute.String("research.guardrail_classification", string(result.Classification)))
	span.SetStatus(codes.Ok, "completed")
	return result, nil
}

func parseGuardrailResult(text string) (GuardrailResult, error) {
	candidate, ok := extractBalancedJSON(stripCodeFence(text))
	if !ok {
		return GuardrailResult{}, &PlannerError{Stage: "guardrail", Reason: "no JSON object in response"}
	}

	var raw struct {
		Classification string `json:"classification"`
		Reason         string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return GuardrailResult{}, &PlannerError{Stage: "guardrail", Reason: "malformed JSON: " + err.Error()}
	}

	c := Classification(strings.ToLower(strings.TrimSpace(raw.Classification)))
	if c != ClassificationAllow && c != ClassificationRefuse {
		return GuardrailResult{}, &PlannerError{Stage: "guardrail", Reason: "unknown classification " + raw.Classification}
	}
	return GuardrailResult{Classification: c, Reason: raw.Reason}, nil
}

const guardrailSystemPrompt = `You are a safety classifier gating a research agent. Review the ` +
	`conversation and decide whether the request should proceed. Respond with a single JSON object: ` +
	`{"classification": "allow"|"refuse", "reason": string}. Refuse only clearly disallowed requests; ` +
	`default to allow.`
