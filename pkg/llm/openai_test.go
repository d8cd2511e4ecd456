package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/zhy0216/offramp/pkg/config"
	"github.com/zhy0216/offramp/pkg/types"
)

func completionResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 1677652288,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     12,
			"completion_tokens": 3,
			"total_tokens":      15,
		},
	}
}

// captureServer records the last request body and replies with resp.
func captureServer(t *testing.T, body *map[string]interface{}, resp map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, body); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestNewOpenAIProvider(t *testing.T) {
	p := NewOpenAIProvider("test-key", "", "gpt-4o-mini", "chat")
	if p.GetModel() != "gpt-4o-mini" {
		t.Errorf("expected model 'gpt-4o-mini', got '%s'", p.GetModel())
	}
	p.SetModel("gpt-4.1-nano")
	if p.GetModel() != "gpt-4.1-nano" {
		t.Errorf("expected model 'gpt-4.1-nano', got '%s'", p.GetModel())
	}
}

func TestOpenAIChatCompletions(t *testing.T) {
	var body map[string]interface{}
	server := captureServer(t, &body, completionResponse("Noted."))
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL, "gpt-4o-mini", "chat")
	messages := []types.Message{
		{Role: types.RoleUser, Content: "first"},
		{Role: types.RoleUser, Content: "second"},
		{Role: types.RoleAssistant, Content: "ok"},
		{Role: types.RoleUser, Content: "third"},
	}

	resp, err := p.Chat(context.Background(), messages,
		types.WithSystemPrompt("be brief"), types.WithMaxTokens(60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Noted." {
		t.Errorf("expected 'Noted.', got '%s'", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected finish_reason 'stop', got '%s'", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}

	if got := body["max_completion_tokens"]; got != float64(60) {
		t.Errorf("expected max_completion_tokens 60, got %v", got)
	}
	msgs, _ := body["messages"].([]interface{})
	if len(msgs) != 5 {
		t.Fatalf("expected system + 4 messages, got %d", len(msgs))
	}
	first, _ := msgs[0].(map[string]interface{})
	if first["role"] != "system" || first["content"] != "be brief" {
		t.Errorf("expected leading system prompt, got %v", first)
	}
}

func TestOpenAIChatNoMaxTokens(t *testing.T) {
	var body map[string]interface{}
	server := captureServer(t, &body, completionResponse("ok"))
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL, "gpt-4o-mini", "chat")
	if _, err := p.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := body["max_completion_tokens"]; ok {
		t.Error("expected max_completion_tokens to be omitted")
	}
	msgs, _ := body["messages"].([]interface{})
	if len(msgs) != 1 {
		t.Errorf("expected only the user message, got %d", len(msgs))
	}
}

func TestOpenAIChatError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "Invalid API key"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("invalid-key", server.URL, "gpt-4o-mini", "chat")
	_, err := p.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "Hello"}})
	if err == nil {
		t.Fatal("expected error for invalid API key")
	}
	if !strings.Contains(err.Error(), "HTTP 401") {
		t.Errorf("expected HTTP status in error, got: %v", err)
	}
}

func TestOpenAIChatEmptyChoices(t *testing.T) {
	resp := completionResponse("")
	resp["choices"] = []map[string]interface{}{}
	var body map[string]interface{}
	server := captureServer(t, &body, resp)
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL, "gpt-4o-mini", "chat")
	_, err := p.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "Hello"}})
	if err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestOpenAIRetryOn429(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := callCount.Add(1)
		if n <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"message": "rate limited"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionResponse("Success after retries!"))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL, "gpt-4o-mini", "chat")
	resp, err := p.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "Hello"}})
	if err != nil {
		t.Fatalf("expected success after retries, got error: %v", err)
	}
	if resp.Content != "Success after retries!" {
		t.Errorf("expected 'Success after retries!', got '%s'", resp.Content)
	}
	if callCount.Load() < 3 {
		t.Errorf("expected at least 3 calls (2 retries + 1 success), got %d", callCount.Load())
	}
}

func TestOpenAIResponsesAPI(t *testing.T) {
	var body map[string]interface{}
	server := captureServer(t, &body, map[string]interface{}{
		"id":     "resp-text-001",
		"object": "response",
		"status": "completed",
		"output": []map[string]interface{}{
			{
				"type": "message",
				"role": "assistant",
				"content": []map[string]interface{}{
					{"type": "output_text", "text": "Got it."},
				},
			},
		},
	})
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL+"/v1", "gpt-4o-mini", "responses")
	messages := []types.Message{
		{Role: types.RoleUser, Content: "Hello"},
		{Role: types.RoleAssistant, Content: "Hi"},
		{Role: types.RoleUser, Content: "Thanks"},
	}

	resp, err := p.Chat(context.Background(), messages,
		types.WithSystemPrompt("be brief"), types.WithMaxTokens(40))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Got it." {
		t.Errorf("expected 'Got it.', got '%s'", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected finish_reason 'stop', got '%s'", resp.FinishReason)
	}
	if body["instructions"] != "be brief" {
		t.Errorf("expected instructions 'be brief', got %v", body["instructions"])
	}
	if body["max_output_tokens"] != float64(40) {
		t.Errorf("expected max_output_tokens 40, got %v", body["max_output_tokens"])
	}
	input, _ := body["input"].([]interface{})
	if len(input) != 3 {
		t.Errorf("expected 3 input items, got %d", len(input))
	}
}

func TestWrapAPIError(t *testing.T) {
	err := wrapAPIError("test context", context.DeadlineExceeded)
	if !strings.Contains(err.Error(), "test context") {
		t.Errorf("expected context in error, got: %v", err)
	}
	if strings.Contains(err.Error(), "HTTP") {
		t.Errorf("non-API error should not contain HTTP status, got: %v", err)
	}
}

func TestIsContextOverflow(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		if IsContextOverflow(nil) {
			t.Error("expected false for nil error")
		}
	})

	t.Run("non-API error", func(t *testing.T) {
		if IsContextOverflow(fmt.Errorf("some error")) {
			t.Error("expected false for non-API error")
		}
	})

	overflowServer := func(status int, message string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"message": message,
					"type":    "invalid_request_error",
				},
			})
		}))
	}

	t.Run("context overflow 400", func(t *testing.T) {
		server := overflowServer(400, "This model's maximum context length is 8192 tokens.")
		defer server.Close()

		p := NewOpenAIProvider("test-key", server.URL, "gpt-4o-mini", "chat")
		_, err := p.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}})
		if !IsContextOverflow(err) {
			t.Errorf("expected context overflow, got: %v", err)
		}
	})

	t.Run("unrelated 400", func(t *testing.T) {
		server := overflowServer(400, "Invalid value for temperature")
		defer server.Close()

		p := NewOpenAIProvider("test-key", server.URL, "gpt-4o-mini", "chat")
		_, err := p.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}})
		if IsContextOverflow(err) {
			t.Errorf("expected no overflow for unrelated error, got: %v", err)
		}
	})
}

func TestNewProvider(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		p, err := NewProvider(&config.Config{Provider: config.ProviderOpenAI, APIKey: "k", Model: "gpt-4o-mini", APIType: "chat"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := p.(*OpenAIProvider); !ok {
			t.Errorf("expected *OpenAIProvider, got %T", p)
		}
	})

	t.Run("anthropic", func(t *testing.T) {
		p, err := NewProvider(&config.Config{Provider: config.ProviderAnthropic, APIKey: "k", Model: "claude-3-5-haiku-latest"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := p.(*AnthropicProvider); !ok {
			t.Errorf("expected *AnthropicProvider, got %T", p)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := NewProvider(&config.Config{Provider: config.ProviderOpenAI}); err == nil {
			t.Error("expected error for missing API key")
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		if _, err := NewProvider(&config.Config{Provider: "acme", APIKey: "k"}); err == nil {
			t.Error("expected error for unknown provider")
		}
	})
}
