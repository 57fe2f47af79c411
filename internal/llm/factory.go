package llm

import "fmt"

// Config is the per-provider configuration the factory consumes; it
// mirrors config.LLMProviderConfig without importing the config package.
type Config struct {
	Type    string
	APIKey  string
	BaseURL string
	Model   string
}

// New builds the concrete Provider named by cfg.Type, following the
// teacher's provider-switch factory (internal/agent/core/factories.go).
func New(cfg Config) (Provider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, 4096), nil
	default:
		return nil, fmt.Errorf("unknown llm provider type %q", cfg.Type)
	}
}
