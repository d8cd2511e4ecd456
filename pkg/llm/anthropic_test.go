package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhy0216/offramp/pkg/types"
)

func TestNewAnthropicProvider(t *testing.T) {
	p := NewAnthropicProvider("sk-ant-test", "", "claude-3-5-haiku-latest")
	if p.GetModel() != "claude-3-5-haiku-latest" {
		t.Errorf("expected model 'claude-3-5-haiku-latest', got %q", p.GetModel())
	}
	p.SetModel("claude-sonnet-4-20250514")
	if p.GetModel() != "claude-sonnet-4-20250514" {
		t.Errorf("expected claude-sonnet-4-20250514, got %s", p.GetModel())
	}
}

func TestAnthropicBuildRequest(t *testing.T) {
	p := NewAnthropicProvider("sk-ant-test", "", "claude-3-5-haiku-latest")
	messages := []types.Message{
		{Role: types.RoleUser, Content: "one"},
		{Role: types.RoleUser, Content: "two"},
		{Role: types.RoleAssistant, Content: "ok"},
		{Role: types.RoleUser, Content: ""},
		{Role: types.RoleUser, Content: "three"},
	}

	t.Run("folds consecutive roles", func(t *testing.T) {
		params := p.buildRequest(messages, types.ChatConfig{SystemPrompt: "be brief", MaxTokens: 30})
		if len(params.Messages) != 3 {
			t.Fatalf("expected 3 turns, got %d", len(params.Messages))
		}
		if len(params.Messages[0].Content) != 2 {
			t.Errorf("expected first turn to hold 2 blocks, got %d", len(params.Messages[0].Content))
		}
		if params.MaxTokens != 30 {
			t.Errorf("expected MaxTokens 30, got %d", params.MaxTokens)
		}
		if len(params.System) != 1 || params.System[0].Text != "be brief" {
			t.Errorf("expected system prompt block, got %+v", params.System)
		}
	})

	t.Run("default max tokens", func(t *testing.T) {
		params := p.buildRequest(messages, types.ChatConfig{})
		if params.MaxTokens != types.DefaultMaxOutputTokens {
			t.Errorf("expected default MaxTokens, got %d", params.MaxTokens)
		}
		if len(params.System) != 0 {
			t.Errorf("expected no system blocks, got %d", len(params.System))
		}
	})
}

func TestAnthropicChat_TextResponse(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		response := map[string]interface{}{
			"id":    "msg_123",
			"type":  "message",
			"role":  "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": []map[string]interface{}{
				{"type": "text", "text": "Understood."},
			},
			"stop_reason": "end_turn",
			"usage": map[string]interface{}{
				"input_tokens":  10,
				"output_tokens": 5,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	p := NewAnthropicProvider("sk-ant-test", server.URL, "claude-3-5-haiku-latest")
	messages := []types.Message{{Role: types.RoleUser, Content: "Hello"}}

	resp, err := p.Chat(context.Background(), messages, types.WithMaxTokens(60), types.WithSystemPrompt("quiet"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Understood." {
		t.Errorf("expected 'Understood.', got %q", resp.Content)
	}
	if resp.FinishReason != "end_turn" {
		t.Errorf("expected finish_reason 'end_turn', got %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if body["max_tokens"] != float64(60) {
		t.Errorf("expected max_tokens 60 in request, got %v", body["max_tokens"])
	}
	if _, ok := body["system"]; !ok {
		t.Error("expected system prompt in request")
	}
}

func TestAnthropicChat_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"type": "error",
			"error": map[string]interface{}{
				"type":    "authentication_error",
				"message": "invalid x-api-key",
			},
		})
	}))
	defer server.Close()

	p := NewAnthropicProvider("bad-key", server.URL, "claude-3-5-haiku-latest")
	_, err := p.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error for invalid API key")
	}
	if !strings.Contains(err.Error(), "anthropic chat failed") {
		t.Errorf("expected 'anthropic chat failed' in error, got: %v", err)
	}
	if IsContextOverflow(err) {
		t.Error("authentication error is not a context overflow")
	}
}

func TestAnthropicChat_ContextOverflow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"type": "error",
			"error": map[string]interface{}{
				"type":    "invalid_request_error",
				"message": "prompt is too long: 210000 tokens > 200000 maximum",
			},
		})
	}))
	defer server.Close()

	p := NewAnthropicProvider("sk-ant-test", server.URL, "claude-3-5-haiku-latest")
	_, err := p.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}})
	if !IsContextOverflow(err) {
		t.Errorf("expected context overflow, got: %v", err)
	}
}
