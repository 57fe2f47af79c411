// Package llm provides the LLM capability behind every research stage
// (summarizer, rewriter, evaluator, answerer, guardrail). Providers are
// opaque external collaborators; this package only defines the contract
// and two concrete adapters.
package llm

import "context"

// ChatMessage is one turn sent to the provider.
type ChatMessage struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// TokenUsage reports prompt/completion token counts for cost accounting.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// CompleteOptions tunes a single Generate/Stream call.
type CompleteOptions struct {
	Temperature float32
	MaxTokens   uint32
}

// Provider is the capability interface every research stage depends on.
// Generate and Stream are non-streaming/streaming variants of the same
// call; stages that need token deltas (the answerer) use Stream, every
// other stage uses Generate.
type Provider interface {
	Name() string
	Model() string

	// Generate returns the full completion text for a system+history prompt.
	Generate(ctx context.Context, model string, messages []ChatMessage, opts CompleteOptions) (string, *TokenUsage, error)

	// Stream forwards text deltas on chunks as they arrive. chunks is never
	// closed by the provider; the caller owns it and must drain until
	// Stream returns.
	Stream(ctx context.Context, model string, messages []ChatMessage, opts CompleteOptions, chunks chan<- string) (*TokenUsage, error)
}
