package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zhy0216/offramp/pkg/types"
)

// anthropicError lets IsContextOverflow inspect Anthropic status codes.
type anthropicError = anthropic.Error

// AnthropicProvider wraps the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new AnthropicProvider.
func NewAnthropicProvider(apiKey, baseURL, model string) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(3),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// GetModel returns the model name.
func (a *AnthropicProvider) GetModel() string {
	return a.model
}

// SetModel changes the model used for subsequent requests.
func (a *AnthropicProvider) SetModel(model string) {
	a.model = model
}

// buildRequest converts a transcript into Messages API params. Consecutive
// messages from the same role are folded into one turn.
func (a *AnthropicProvider) buildRequest(messages []types.Message, cfg types.ChatConfig) anthropic.MessageNewParams {
	var systemBlocks []anthropic.TextBlockParam
	if cfg.SystemPrompt != "" {
		systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: cfg.SystemPrompt})
	}

	var turns []anthropic.MessageParam
	for _, msg := range messages {
		var role anthropic.MessageParamRole
		switch msg.Role {
		case types.RoleSystem:
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: msg.Content})
			continue
		case types.RoleUser:
			role = anthropic.MessageParamRoleUser
		case types.RoleAssistant:
			role = anthropic.MessageParamRoleAssistant
		default:
			continue
		}
		if msg.Content == "" {
			continue
		}

		block := anthropic.NewTextBlock(msg.Content)
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content = append(turns[n-1].Content, block)
			continue
		}
		turns = append(turns, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{block},
		})
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = types.DefaultMaxOutputTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  turns,
	}
	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}
	return params
}

// Chat sends a chat request.
func (a *AnthropicProvider) Chat(ctx context.Context, messages []types.Message, opts ...types.ChatOption) (*types.ChatResponse, error) {
	cfg := types.ApplyChatOptions(opts)
	params := a.buildRequest(messages, cfg)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat failed: %w", err)
	}

	response := &types.ChatResponse{
		FinishReason: string(msg.StopReason),
		Usage: types.TokenUsage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
			TotalTokens:      msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			response.Content += block.Text
		}
	}

	return response, nil
}
