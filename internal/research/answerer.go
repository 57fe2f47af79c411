package research

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcburst/deepresearch/internal/llm"
)

var answererTracer trace.Tracer = otel.Tracer("deepresearch/internal/research/answerer")

// Answerer is the final sourced-answer streaming stage (spec §4.C8).
type Answerer struct {
	Provider llm.Provider
	Model    string
}

// Answer streams the final answer's text deltas into sink as text-delta
// events and returns the fully assembled text for onFinish persistence.
// When isFinal is true the prompt acknowledges the evidence may be
// incomplete (spec §4.C8, step-cap boundary behavior).
func (a *Answerer) Answer(ctx context.Context, question string, sctx *SystemContext, isFinal bool, sink Sink) (string, error) {
	ctx, span := answererTracer.Start(ctx, "Answerer.Answer")
	defer span.End()
	span.SetAttributes(attribute.Bool("research.is_final", isFinal))

	prompt := buildAnswererPrompt(question, sctx, isFinal)
	chunks := make(chan string)
	done := make(chan struct{})

	var assembled string
	go func() {
		defer close(done)
		for delta := range chunks {
			assembled += delta
			sink.Emit(textDeltaEvent(delta))
		}
	}()

	_, err := a.Provider.Stream(ctx, a.Model, []llm.ChatMessage{
		{Role: "system", Content: answererSystemPrompt(isFinal)},
		{Role: "user", Content: prompt},
	}, llm.CompleteOptions{Temperature: 0.4}, chunks)
	close(chunks)
	<-done

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return assembled, fmt.Errorf("answerer stream: %w", err)
	}
	span.SetStatus(codes.Ok, "completed")
	return assembled, nil
}

func answererSystemPrompt(isFinal bool) string {
	base := `You are the final-answer stage of a research agent. Write a clear, well-organized answer to ` +
		`the user's question using only the gathered search history. Cite sources inline using markdown links ` +
		`(e.g. [source](https://...)); every non-trivial claim should be attributable to a cited source.`
	if isFinal {
		base += ` The available evidence may be incomplete because the research loop reached its step limit. ` +
			`Acknowledge this briefly and provide the best available answer from what was gathered rather ` +
			`than refusing to answer.`
	}
	return base
}

func buildAnswererPrompt(question string, sctx *SystemContext, isFinal bool) string {
	return fmt.Sprintf(
		"User question:\n%s\n\nConversation so far:\n%s\nGathered search history:\n%s\nisFinal=%v\n",
		question, sctx.messageHistoryText(), sctx.searchHistoryText(), isFinal,
	)
}
