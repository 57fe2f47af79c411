package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider for OpenAI's Chat Completions API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIProvider builds a provider against the given base URL (empty
// for the default OpenAI endpoint) and default model.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) resolveModel(model string) string {
	if model != "" {
		return model
	}
	return p.model
}

func (p *OpenAIProvider) Generate(ctx context.Context, model string, messages []ChatMessage, opts CompleteOptions) (string, *TokenUsage, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.resolveModel(model),
		Messages:    convertOpenAIMessages(messages),
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = int(opts.MaxTokens)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("openai chat completion: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}
	return content, usage, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, model string, messages []ChatMessage, opts CompleteOptions, chunks chan<- string) (*TokenUsage, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.resolveModel(model),
		Messages:    convertOpenAIMessages(messages),
		Temperature: opts.Temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = int(opts.MaxTokens)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai stream creation: %w", err)
	}
	defer stream.Close()

	var usage *TokenUsage
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, fmt.Errorf("openai stream recv: %w", err)
		}

		if resp.Usage != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(resp.Usage.PromptTokens),
				CompletionTokens: uint32(resp.Usage.CompletionTokens),
				TotalTokens:      uint32(resp.Usage.TotalTokens),
			}
		}

		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			select {
			case chunks <- delta:
			case <-ctx.Done():
				return usage, ctx.Err()
			}
		}
	}
}

func convertOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		result[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return result
}

var _ Provider = (*OpenAIProvider)(nil)
