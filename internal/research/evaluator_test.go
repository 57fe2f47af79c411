package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcburst/deepresearch/internal/llm"
)

func TestEvaluateValidActionReturnsImmediately(t *testing.T) {
	e := &Evaluator{Provider: constProvider(`{"type":"answer","title":"t","reasoning":"r","feedback":"f"}`), Model: "m"}
	sctx := NewSystemContext("", nil)

	action, err := e.Evaluate(context.Background(), "question", sctx)

	require.NoError(t, err)
	require.Equal(t, ActionAnswer, action.Type)
}

// A Generate failure retries once before giving up, like a PlannerError.
func TestEvaluateProviderFailurePropagatesAfterOneRetry(t *testing.T) {
	calls := 0
	e := &Evaluator{
		Provider: &fakeProvider{generateFn: func(ctx context.Context, messages []llm.ChatMessage) (string, error) {
			calls++
			return "", errors.New("provider down")
		}},
		Model: "m",
	}
	sctx := NewSystemContext("", nil)

	_, err := e.Evaluate(context.Background(), "question", sctx)

	require.Error(t, err)
	require.Equal(t, 2, calls) // one attempt plus one retry, then give up
}

// A provider failure on the first attempt that recovers on retry must
// succeed rather than propagate.
func TestEvaluateProviderFailureRecoversOnRetry(t *testing.T) {
	calls := 0
	e := &Evaluator{
		Provider: &fakeProvider{generateFn: func(ctx context.Context, messages []llm.ChatMessage) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("transient failure")
			}
			return `{"type":"continue","title":"t","reasoning":"r","feedback":"f"}`, nil
		}},
		Model: "m",
	}
	sctx := NewSystemContext("", nil)

	action, err := e.Evaluate(context.Background(), "question", sctx)

	require.NoError(t, err)
	require.Equal(t, ActionContinue, action.Type)
	require.Equal(t, 2, calls)
}

// A missing-field Action (Validate failure) is a PlannerError and
// retries once before propagating, unlike the rewriter there is no safe
// fallback value for an Action so both attempts failing is a hard error.
func TestEvaluateMissingFieldFailsValidationAndPropagatesAfterRetry(t *testing.T) {
	calls := 0
	e := &Evaluator{
		Provider: &fakeProvider{generateFn: func(ctx context.Context, messages []llm.ChatMessage) (string, error) {
			calls++
			return `{"type":"answer","title":"","reasoning":"r","feedback":"f"}`, nil
		}},
		Model: "m",
	}
	sctx := NewSystemContext("", nil)

	_, err := e.Evaluate(context.Background(), "question", sctx)

	require.Error(t, err)
	require.Equal(t, 2, calls)
}

// A malformed-JSON response on the first attempt that parses cleanly on
// retry must succeed.
func TestEvaluateMalformedResponseRecoversOnRetry(t *testing.T) {
	calls := 0
	e := &Evaluator{
		Provider: &fakeProvider{generateFn: func(ctx context.Context, messages []llm.ChatMessage) (string, error) {
			calls++
			if calls == 1 {
				return "not json at all", nil
			}
			return `{"type":"answer","title":"t","reasoning":"r","feedback":"f"}`, nil
		}},
		Model: "m",
	}
	sctx := NewSystemContext("", nil)

	action, err := e.Evaluate(context.Background(), "question", sctx)

	require.NoError(t, err)
	require.Equal(t, ActionAnswer, action.Type)
	require.Equal(t, 2, calls)
}
