package llm

import (
	"context"
	"fmt"

	"github.com/zhy0216/offramp/pkg/config"
	"github.com/zhy0216/offramp/pkg/types"
)

// Provider defines the interface for different LLM backends.
type Provider interface {
	Chat(ctx context.Context, messages []types.Message, opts ...types.ChatOption) (*types.ChatResponse, error)
	GetModel() string
	SetModel(model string)
}

// Compile-time interface compliance checks.
var (
	_ Provider = (*OpenAIProvider)(nil)
	_ Provider = (*AnthropicProvider)(nil)
)

// NewProvider builds the provider named in cfg. It fails when the provider's
// API key is missing.
func NewProvider(cfg *config.Config) (Provider, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case config.ProviderOpenAI, "":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.APIType), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
