package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for Anthropic's Messages API.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider builds a provider against the default Anthropic
// endpoint and default model/budget.
func NewAnthropicProvider(apiKey, model string, maxTokens int64) *AnthropicProvider {
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) resolveModel(model string) string {
	if model != "" {
		return model
	}
	return p.model
}

func (p *AnthropicProvider) buildParams(model string, messages []ChatMessage, opts CompleteOptions) anthropic.MessageNewParams {
	anthropicMessages, systemPrompt := convertAnthropicMessages(messages)

	maxTokens := p.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.resolveModel(model)),
		MaxTokens:   maxTokens,
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(float64(opts.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	return params
}

func (p *AnthropicProvider) Generate(ctx context.Context, model string, messages []ChatMessage, opts CompleteOptions) (string, *TokenUsage, error) {
	params := p.buildParams(model, messages, opts)

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", nil, fmt.Errorf("anthropic message: %w", err)
	}

	content := ""
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(message.Usage.InputTokens),
		CompletionTokens: uint32(message.Usage.OutputTokens),
		TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
	}
	return content, usage, nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, model string, messages []ChatMessage, opts CompleteOptions, chunks chan<- string) (*TokenUsage, error) {
	params := p.buildParams(model, messages, opts)
	stream := p.client.Messages.NewStreaming(ctx, params)

	var usage *TokenUsage
	for stream.Next() {
		event := stream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			if variant.Message.Usage.InputTokens > 0 {
				usage = &TokenUsage{PromptTokens: uint32(variant.Message.Usage.InputTokens)}
			}
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				select {
				case chunks <- delta.Text:
				case <-ctx.Done():
					return usage, ctx.Err()
				}
			}
		case anthropic.MessageDeltaEvent:
			if variant.Usage.OutputTokens > 0 {
				if usage == nil {
					usage = &TokenUsage{}
				}
				usage.CompletionTokens = uint32(variant.Usage.OutputTokens)
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			}
		}
	}

	if err := stream.Err(); err != nil {
		return usage, fmt.Errorf("anthropic stream: %w", err)
	}
	return usage, nil
}

func convertAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var result []anthropic.MessageParam
	var systemPrompt string

	for _, m := range messages {
		switch m.Role {
		case "system":
			systemPrompt = m.Content
		case "user":
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return result, systemPrompt
}

var _ Provider = (*AnthropicProvider)(nil)
