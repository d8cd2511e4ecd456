package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"

	"github.com/zhy0216/offramp/pkg/hooks"
	"github.com/zhy0216/offramp/pkg/trigger"
	"github.com/zhy0216/offramp/pkg/types"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds the application configuration.
type Config struct {
	Provider         string `validate:"oneof=openai anthropic"`
	APIKey           string
	BaseURL          string
	Model            string        `validate:"required"`
	APIType          string        `validate:"oneof=chat responses"` // openai only
	ChatDelay        time.Duration `validate:"gte=0"`
	ReplyProbability float64       `validate:"gte=0,lte=1"`
	MaxOutputTokens  int64         `validate:"gt=0"`
	SystemPrompt     string
	LogLevel         string
	LogFormat        string
	Trigger          trigger.Options `validate:"-"`
	Plugins          []hooks.PluginConfig
}

// fileConfig maps to the JSON config file structure.
type fileConfig struct {
	Provider         string               `json:"provider,omitempty"`
	APIKey           string               `json:"api_key,omitempty"`
	BaseURL          string               `json:"base_url,omitempty"`
	Model            string               `json:"model,omitempty"`
	APIType          string               `json:"api_type,omitempty"`
	ChatDelay        string               `json:"chat_delay,omitempty"`
	ReplyProbability *float64             `json:"reply_probability,omitempty"`
	MaxOutputTokens  int64                `json:"max_output_tokens,omitempty"`
	SystemPrompt     string               `json:"system_prompt,omitempty"`
	LogLevel         string               `json:"log_level,omitempty"`
	LogFormat        string               `json:"log_format,omitempty"`
	Trigger          trigger.Options      `json:"trigger"`
	Plugins          []hooks.PluginConfig `json:"plugins,omitempty"`
}

// resolve returns the first non-empty value from the provided strings.
func resolve(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Load reads configuration by merging config file, environment variables,
// and defaults. Priority: config file > env var > default.
// A missing API key is not an error here; see RequireAPIKey.
func Load() (*Config, error) {
	fc, err := readConfigFile()
	if err != nil {
		return nil, err
	}

	provider := strings.ToLower(resolve(fc.Provider, os.Getenv("OFFRAMP_PROVIDER"), ProviderOpenAI))

	cfg := &Config{
		Provider:     provider,
		APIType:      resolve(fc.APIType, os.Getenv("OPENAI_API_TYPE"), "chat"),
		SystemPrompt: resolve(fc.SystemPrompt, os.Getenv("OFFRAMP_SYSTEM_PROMPT"), types.DefaultSystemPrompt),
		LogLevel:     resolve(fc.LogLevel, os.Getenv("OFFRAMP_LOG_LEVEL"), "info"),
		LogFormat:    resolve(fc.LogFormat, os.Getenv("OFFRAMP_LOG_FORMAT"), "console"),
		Trigger:      fc.Trigger,
		Plugins:      fc.Plugins,
	}

	switch provider {
	case ProviderAnthropic:
		cfg.APIKey = resolve(fc.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		cfg.BaseURL = resolve(fc.BaseURL, os.Getenv("ANTHROPIC_BASE_URL"))
		cfg.Model = resolve(fc.Model, os.Getenv("OFFRAMP_MODEL"), "claude-3-5-haiku-latest")
	default:
		cfg.APIKey = resolve(fc.APIKey, os.Getenv("OPENAI_API_KEY"))
		cfg.BaseURL = resolve(fc.BaseURL, os.Getenv("OPENAI_BASE_URL"))
		cfg.Model = resolve(fc.Model, os.Getenv("OFFRAMP_MODEL"), "gpt-4o-mini")
	}

	delay := resolve(fc.ChatDelay, os.Getenv("OFFRAMP_CHAT_DELAY"))
	cfg.ChatDelay = types.DefaultChatDelay
	if delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return nil, fmt.Errorf("invalid chat delay %q: %w", delay, err)
		}
		cfg.ChatDelay = d
	}

	cfg.ReplyProbability = types.DefaultReplyProbability
	if fc.ReplyProbability != nil {
		cfg.ReplyProbability = *fc.ReplyProbability
	} else if v := os.Getenv("OFFRAMP_REPLY_PROBABILITY"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid OFFRAMP_REPLY_PROBABILITY %q: %w", v, err)
		}
		cfg.ReplyProbability = p
	}

	cfg.MaxOutputTokens = types.DefaultMaxOutputTokens
	if fc.MaxOutputTokens != 0 {
		cfg.MaxOutputTokens = fc.MaxOutputTokens
	} else if v := os.Getenv("OFFRAMP_MAX_OUTPUT_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid OFFRAMP_MAX_OUTPUT_TOKENS %q: %w", v, err)
		}
		cfg.MaxOutputTokens = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and the trigger section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return fmt.Errorf("invalid config: %s=%v fails %q", strings.ToLower(fe.Field()), fe.Value(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Trigger.Validate(); err != nil {
		return fmt.Errorf("invalid config: trigger.%w", err)
	}
	return nil
}

// RequireAPIKey reports a missing key for the configured provider. Only the
// chat loop talks to a model, so other commands never call it.
func (c *Config) RequireAPIKey() error {
	if c.APIKey != "" {
		return nil
	}
	if c.Provider == ProviderAnthropic {
		return fmt.Errorf("ANTHROPIC_API_KEY is required (set via env var or config file)")
	}
	return fmt.Errorf("OPENAI_API_KEY is required (set via env var or config file)")
}

// Dir returns the configuration directory, honouring OFFRAMP_HOME.
func Dir() (string, error) {
	if dir := os.Getenv("OFFRAMP_HOME"); dir != "" {
		return dir, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(h, types.ConfigDir), nil
}

// TranscriptDir is where the chat loop saves transcripts by default.
func TranscriptDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "transcripts"), nil
}

// EnsureWorkspace creates the configuration and transcript directories.
func EnsureWorkspace() error {
	dir, err := TranscriptDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}
	return nil
}

// readConfigFile reads and parses the JSONC config file.
// Returns a zero-value fileConfig if the file does not exist.
func readConfigFile() (fileConfig, error) {
	var fc fileConfig

	homeDir, err := Dir()
	if err != nil {
		return fc, err
	}

	path := filepath.Join(homeDir, types.ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := json.Unmarshal(jsonc.ToJSON(data), &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return fc, nil
}
