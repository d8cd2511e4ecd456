package types

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleSystem only appears in requests sent to a language model. It is
	// never a valid transcript role.
	RoleSystem Role = "system"
)

// Message is one transcript entry. Timestamp is milliseconds since the epoch.
type Message struct {
	Role      Role   `json:"role" yaml:"role" validate:"required,oneof=user assistant"`
	Content   string `json:"content" yaml:"content" validate:"utf8"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp" validate:"gte=0"`
}

// ChatResponse represents the response from a chat completion.
type ChatResponse struct {
	Content      string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage tracks token counts from an API response.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// ChatOption configures optional behavior for a Chat call.
type ChatOption func(*ChatConfig)

// ChatConfig holds optional settings for a Chat call.
type ChatConfig struct {
	SystemPrompt string // Prepended as a system instruction
	MaxTokens    int64  // Output cap; 0 leaves the provider default
}

// ApplyChatOptions merges variadic options into a ChatConfig.
func ApplyChatOptions(opts []ChatOption) ChatConfig {
	var cfg ChatConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// WithSystemPrompt sets the system instruction for the request.
func WithSystemPrompt(prompt string) ChatOption {
	return func(c *ChatConfig) { c.SystemPrompt = prompt }
}

// WithMaxTokens caps the number of output tokens the model may produce.
func WithMaxTokens(n int64) ChatOption {
	return func(c *ChatConfig) { c.MaxTokens = n }
}
