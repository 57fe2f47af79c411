package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcburst/deepresearch/internal/llm"
)

func TestRewriteValidPlanReturnsImmediately(t *testing.T) {
	r := &Rewriter{Provider: constProvider(`{"plan":"p","queries":["q1","q2","q3"]}`), Model: "m"}
	sctx := NewSystemContext("", nil)

	plan, err := r.Rewrite(context.Background(), "question", sctx)

	require.NoError(t, err)
	require.Equal(t, []string{"q1", "q2", "q3"}, plan.Queries)
}

// A genuine provider failure must bubble up as a real error after one
// retry, not be masked by the literal-question fallback: spec §4.C11
// "Failure semantics" (LLM failures terminate the loop) takes priority
// over the §4.C11(a) count tie-break, which only covers a validation
// failure on a successfully-returned plan.
func TestRewriteProviderFailurePropagatesAfterOneRetry(t *testing.T) {
	calls := 0
	r := &Rewriter{
		Provider: &fakeProvider{generateFn: func(ctx context.Context, messages []llm.ChatMessage) (string, error) {
			calls++
			return "", errors.New("provider down")
		}},
		Model: "m",
	}
	sctx := NewSystemContext("", nil)

	_, err := r.Rewrite(context.Background(), "question", sctx)

	require.Error(t, err)
	require.Equal(t, 2, calls) // one attempt plus one retry, then give up
}

// A query-count validation failure (not a provider error) retries once
// and then falls back to the literal question, per §4.C11(a).
func TestRewriteCountValidationFailureFallsBackToLiteralQuestion(t *testing.T) {
	calls := 0
	r := &Rewriter{
		Provider: &fakeProvider{generateFn: func(ctx context.Context, messages []llm.ChatMessage) (string, error) {
			calls++
			return `{"plan":"p","queries":["only-one"]}`, nil
		}},
		Model: "m",
	}
	sctx := NewSystemContext("", nil)

	plan, err := r.Rewrite(context.Background(), "what is the capital of France", sctx)

	require.NoError(t, err)
	require.Equal(t, []string{"what is the capital of France"}, plan.Queries)
	require.Equal(t, 2, calls)
}

// A provider failure on the retry attempt (after an initial successful
// but invalid plan) still propagates as an error rather than falling back.
func TestRewriteRetryProviderFailureAfterInitialValidationFailurePropagates(t *testing.T) {
	calls := 0
	r := &Rewriter{
		Provider: &fakeProvider{generateFn: func(ctx context.Context, messages []llm.ChatMessage) (string, error) {
			calls++
			if calls == 1 {
				return `{"plan":"p","queries":["only-one"]}`, nil
			}
			return "", errors.New("provider down on retry")
		}},
		Model: "m",
	}
	sctx := NewSystemContext("", nil)

	_, err := r.Rewrite(context.Background(), "question", sctx)

	require.Error(t, err)
}
