package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zhy0216/offramp/pkg/trigger"
	"github.com/zhy0216/offramp/pkg/types"
)

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil {
		t.Fatal("nil result")
	}
	if len(res.Content) != 1 {
		t.Fatalf("expected 1 content block, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func TestAcknowledge(t *testing.T) {
	tool := NewAcknowledgeTool()
	tests := []struct {
		name string
		args map[string]any
	}{
		{"no note", nil},
		{"short note", map[string]any{"note": "thanks"}},
		{"overlong note", map[string]any{"note": strings.Repeat("x", types.MaxNoteLength+1)}},
		{"wrong type", map[string]any{"note": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), callRequest("acknowledge", tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.IsError {
				t.Fatal("expected success result")
			}
			if got := resultText(t, res); got != types.AcknowledgementText {
				t.Errorf("got %q, want %q", got, types.AcknowledgementText)
			}
		})
	}
}

func TestAcknowledgeDefinition(t *testing.T) {
	def := NewAcknowledgeTool().Definition()
	if def.Name != "acknowledge" {
		t.Errorf("name = %q", def.Name)
	}
	if len(def.InputSchema.Required) != 0 {
		t.Errorf("note must be optional, required = %v", def.InputSchema.Required)
	}
	if _, ok := def.InputSchema.Properties["note"]; !ok {
		t.Error("missing note property")
	}
}

func TestCheckDefinition(t *testing.T) {
	def := NewCheckTool().Definition()
	if def.Name != "check_conversation" {
		t.Errorf("name = %q", def.Name)
	}
	if len(def.InputSchema.Required) != 1 || def.InputSchema.Required[0] != "messages" {
		t.Errorf("required = %v, want [messages]", def.InputSchema.Required)
	}
}

const loopConversation = `[
	{"role": "user", "content": "Rewrite the intro paragraph"},
	{"role": "assistant", "content": "Here is a new intro."},
	{"role": "user", "content": "Rewrite the intro paragraph differently"},
	{"role": "assistant", "content": "Here is another intro."},
	{"role": "user", "content": "Rewrite the intro paragraph again please"}
]`

func decodeResult(t *testing.T, res *mcp.CallToolResult) trigger.Result {
	t.Helper()
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var out trigger.Result
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	return out
}

func TestCheckConversation(t *testing.T) {
	tool := NewCheckTool()

	t.Run("loop", func(t *testing.T) {
		res, err := tool.Handle(context.Background(), callRequest("check_conversation", map[string]any{
			"messages": loopConversation,
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := decodeResult(t, res)
		if !out.Triggered {
			t.Fatal("expected triggered")
		}
		if len(out.Signals) != 1 || out.Signals[0] != trigger.SignalLoop {
			t.Errorf("signals = %v, want [loop]", out.Signals)
		}
	})

	t.Run("empty conversation", func(t *testing.T) {
		res, err := tool.Handle(context.Background(), callRequest("check_conversation", map[string]any{
			"messages": "[]",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := resultText(t, res); got != `{"triggered":false,"signals":[]}` {
			t.Errorf("got %s", got)
		}
	})

	t.Run("options raise threshold", func(t *testing.T) {
		res, err := tool.Handle(context.Background(), callRequest("check_conversation", map[string]any{
			"messages": loopConversation,
			"options":  `{"loop": {"threshold": 4}}`,
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out := decodeResult(t, res); out.Triggered {
			t.Errorf("expected no trigger with threshold 4, got %v", out.Signals)
		}
	})

	t.Run("single detector", func(t *testing.T) {
		res, err := tool.Handle(context.Background(), callRequest("check_conversation", map[string]any{
			"messages": loopConversation,
			"detector": "saturation",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out := decodeResult(t, res); out.Triggered || len(out.Signals) != 0 {
			t.Errorf("saturation alone should not fire, got %v", out.Signals)
		}
	})
}

func TestCheckConversationErrors(t *testing.T) {
	tool := NewCheckTool()
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing messages", map[string]any{}, "messages"},
		{"not json", map[string]any{"messages": "hello"}, "invalid messages"},
		{"bad role", map[string]any{"messages": `[{"role": "system", "content": "x"}]`}, "role"},
		{"bad options", map[string]any{"messages": "[]", "options": `{"loop": {"similarityFloor": 2}}`}, "similarityFloor"},
		{"unknown detector", map[string]any{"messages": "[]", "detector": "boredom"}, "unknown detector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), callRequest("check_conversation", tt.args))
			if err != nil {
				t.Fatalf("expected tool error result, got Go error: %v", err)
			}
			if !res.IsError {
				t.Fatalf("expected error result, got %s", resultText(t, res))
			}
			if got := resultText(t, res); !strings.Contains(got, tt.want) {
				t.Errorf("error %q does not mention %q", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	if New() == nil {
		t.Fatal("New returned nil")
	}
}
