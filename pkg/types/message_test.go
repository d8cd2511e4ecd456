package types

import (
	"encoding/json"
	"testing"
)

func TestApplyChatOptions_Nil(t *testing.T) {
	cfg := ApplyChatOptions(nil)
	if cfg.SystemPrompt != "" {
		t.Errorf("expected empty SystemPrompt for nil opts, got %q", cfg.SystemPrompt)
	}
	if cfg.MaxTokens != 0 {
		t.Errorf("expected MaxTokens=0 for nil opts, got %d", cfg.MaxTokens)
	}
}

func TestWithMaxTokens(t *testing.T) {
	cfg := ApplyChatOptions([]ChatOption{WithMaxTokens(42)})
	if cfg.MaxTokens != 42 {
		t.Errorf("expected MaxTokens=42, got %d", cfg.MaxTokens)
	}
}

func TestApplyChatOptions_Multiple(t *testing.T) {
	cfg := ApplyChatOptions([]ChatOption{
		WithSystemPrompt("be brief"),
		WithMaxTokens(10),
		WithMaxTokens(20),
	})
	if cfg.SystemPrompt != "be brief" {
		t.Errorf("expected SystemPrompt 'be brief', got %q", cfg.SystemPrompt)
	}
	if cfg.MaxTokens != 20 {
		t.Errorf("expected last option to win, got %d", cfg.MaxTokens)
	}
}

func TestMessageJSONKeys(t *testing.T) {
	data := []byte(`{"role":"user","content":"hi","timestamp":1700000000000,"extra":true}`)
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Role != RoleUser {
		t.Errorf("Role = %q, want %q", m.Role, RoleUser)
	}
	if m.Content != "hi" {
		t.Errorf("Content = %q, want %q", m.Content, "hi")
	}
	if m.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d, want %d", m.Timestamp, int64(1700000000000))
	}
}
