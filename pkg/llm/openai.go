package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/zhy0216/offramp/pkg/types"
)

// OpenAIProvider talks to the OpenAI Chat Completions or Responses API.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	apiType string // "chat" or "responses"
}

// NewOpenAIProvider creates a new OpenAIProvider with the given configuration.
func NewOpenAIProvider(apiKey, baseURL, model, apiType string) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(3),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		client:  openai.NewClient(opts...),
		model:   model,
		apiType: apiType,
	}
}

// Chat sends a chat request, dispatching to the appropriate API based on apiType.
func (c *OpenAIProvider) Chat(ctx context.Context, messages []types.Message, opts ...types.ChatOption) (*types.ChatResponse, error) {
	cfg := types.ApplyChatOptions(opts)
	if c.apiType == "responses" {
		return c.chatViaResponses(ctx, messages, cfg)
	}
	return c.chatViaCompletions(ctx, messages, cfg)
}

func (c *OpenAIProvider) chatViaCompletions(ctx context.Context, messages []types.Message, cfg types.ChatConfig) (*types.ChatResponse, error) {
	var openaiMessages []openai.ChatCompletionMessageParamUnion
	if cfg.SystemPrompt != "" {
		openaiMessages = append(openaiMessages, openai.SystemMessage(cfg.SystemPrompt))
	}
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleUser:
			openaiMessages = append(openaiMessages, openai.UserMessage(msg.Content))
		case types.RoleAssistant:
			openaiMessages = append(openaiMessages, openai.AssistantMessage(msg.Content))
		case types.RoleSystem:
			openaiMessages = append(openaiMessages, openai.SystemMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: openaiMessages,
	}
	if cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(cfg.MaxTokens)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapAPIError("chat completion failed", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := completion.Choices[0]
	return &types.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: types.TokenUsage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}, nil
}

func (c *OpenAIProvider) chatViaResponses(ctx context.Context, messages []types.Message, cfg types.ChatConfig) (*types.ChatResponse, error) {
	instructions := cfg.SystemPrompt
	var input responses.ResponseInputParam
	for _, msg := range messages {
		var role responses.EasyInputMessageRole
		switch msg.Role {
		case types.RoleUser:
			role = responses.EasyInputMessageRoleUser
		case types.RoleAssistant:
			role = responses.EasyInputMessageRoleAssistant
		case types.RoleSystem:
			instructions = msg.Content
			continue
		default:
			continue
		}
		input = append(input, responses.ResponseInputItemUnionParam{
			OfMessage: &responses.EasyInputMessageParam{
				Role: role,
				Content: responses.EasyInputMessageContentUnionParam{
					OfString: openai.String(msg.Content),
				},
			},
		})
	}

	reqParams := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
	}
	if instructions != "" {
		reqParams.Instructions = openai.String(instructions)
	}
	if cfg.MaxTokens > 0 {
		reqParams.MaxOutputTokens = openai.Int(cfg.MaxTokens)
	}

	resp, err := c.client.Responses.New(ctx, reqParams)
	if err != nil {
		return nil, wrapAPIError("responses API call failed", err)
	}

	response := &types.ChatResponse{
		FinishReason: "stop",
		Usage: types.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type == "output_text" {
				response.Content += content.Text
			}
		}
	}
	if resp.Status == "incomplete" {
		response.FinishReason = "length"
	}

	return response, nil
}

// GetModel returns the model name.
func (c *OpenAIProvider) GetModel() string {
	return c.model
}

// SetModel changes the model used for subsequent requests.
func (c *OpenAIProvider) SetModel(model string) {
	c.model = model
}

// wrapAPIError wraps an API error with context information, extracting HTTP
// status codes from openai.Error when available.
func wrapAPIError(context string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: HTTP %d: %w", context, apiErr.StatusCode, err)
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsContextOverflow checks if an error indicates that the request exceeded
// the model's context window. It looks for HTTP 400/413 status codes combined
// with known error message patterns from various providers.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	status := 0
	var apiErr *openai.Error
	var antErr *anthropicError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.StatusCode
	case errors.As(err, &antErr):
		status = antErr.StatusCode
	default:
		return false
	}
	if status != 400 && status != 413 {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context length") ||
		strings.Contains(msg, "context window") ||
		strings.Contains(msg, "too many tokens") ||
		strings.Contains(msg, "token limit") ||
		strings.Contains(msg, "prompt is too long") ||
		strings.Contains(msg, "maximum prompt length") ||
		strings.Contains(msg, "reduce the length") ||
		strings.Contains(msg, "input token count") ||
		(strings.Contains(msg, "maximum") && strings.Contains(msg, "token"))
}
