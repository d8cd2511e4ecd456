// Package server exposes offramp over the Model Context Protocol on stdio.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zhy0216/offramp/pkg/logger"
	"github.com/zhy0216/offramp/pkg/transcript"
	"github.com/zhy0216/offramp/pkg/trigger"
	"github.com/zhy0216/offramp/pkg/types"
)

// Version is reported to clients during initialization. Set at build time.
var Version = "dev"

// New builds the MCP server with every tool registered.
func New() *server.MCPServer {
	s := server.NewMCPServer(
		"offramp",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	ack := NewAcknowledgeTool()
	s.AddTool(ack.Definition(), ack.Handle)

	check := NewCheckTool()
	s.AddTool(check.Definition(), check.Handle)

	return s
}

// Serve runs the server over in/out until ctx is cancelled or in is closed.
func Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	l := logger.Named("server")
	stdio := server.NewStdioServer(New())
	stdio.SetErrorLogger(log.New(l, "", 0))

	l.Info().Str("version", Version).Msg("serving on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcp server: %w", err)
	}
	l.Info().Msg("server stopped")
	return nil
}

// AcknowledgeTool answers every call with the same fixed text. It keeps
// nothing and logs nothing.
type AcknowledgeTool struct{}

func NewAcknowledgeTool() *AcknowledgeTool {
	return &AcknowledgeTool{}
}

func (t *AcknowledgeTool) Definition() mcp.Tool {
	return mcp.NewTool("acknowledge",
		mcp.WithDescription("Acknowledge the user without continuing the conversation. "+
			"Use this instead of a reply when nothing more needs to be said."),
		mcp.WithString("note",
			mcp.Description(fmt.Sprintf("Optional short note, at most %d characters. It is not stored.", types.MaxNoteLength)),
			mcp.MaxLength(types.MaxNoteLength),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Handle never reads the note, so an overlong one is not an error.
func (t *AcknowledgeTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(types.AcknowledgementText), nil
}

// CheckTool runs the trigger detectors over a conversation supplied as JSON.
type CheckTool struct{}

func NewCheckTool() *CheckTool {
	return &CheckTool{}
}

func (t *CheckTool) Definition() mcp.Tool {
	names := make([]string, 0, 4)
	for _, d := range trigger.Detectors() {
		names = append(names, string(d.Signal))
	}
	return mcp.NewTool("check_conversation",
		mcp.WithDescription("Check whether a conversation has stopped being productive. "+
			"Returns {\"triggered\": bool, \"signals\": [...]} listing the detectors that fired."),
		mcp.WithString("messages",
			mcp.Required(),
			mcp.Description(`JSON array of messages: [{"role": "user"|"assistant", "content": "...", "timestamp": 1700000000000}]. `+
				"timestamp is optional, in milliseconds."),
		),
		mcp.WithString("options",
			mcp.Description("Optional JSON object of detector options keyed by loop, velocityCollapse, scopeCreep and saturation."),
		),
		mcp.WithString("detector",
			mcp.Description("Run only this detector: "+strings.Join(names, ", ")),
			mcp.Enum(names...),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func (t *CheckTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("messages")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	conv, err := transcript.Decode(strings.NewReader(raw), transcript.FormatJSON)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid messages: %v", err)), nil
	}

	var opts trigger.Options
	if rawOpts := req.GetString("options", ""); rawOpts != "" {
		opts, err = transcript.DecodeOptions(strings.NewReader(rawOpts), transcript.FormatJSON)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid options: %v", err)), nil
		}
	}

	res, err := trigger.Check(conv, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if name := req.GetString("detector", ""); name != "" {
		d, ok := trigger.Lookup(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown detector %q", name)), nil
		}
		res = trigger.Result{Signals: []trigger.Signal{}}
		if d.Run(conv, opts) {
			res.Signals = append(res.Signals, d.Signal)
			res.Triggered = true
		}
	}

	logger.Named("server").Debug().
		Int("messages", len(conv)).
		Bool("triggered", res.Triggered).
		Strs("signals", res.Strings()).
		Msg("check_conversation")

	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func serverInstructions() string {
	return `offramp tells you when a conversation has stopped being useful.

Call check_conversation with the transcript so far. If "triggered" is true,
stop offering more work: no follow-up questions, no extra options. Say what
you need to say in one sentence, or call acknowledge and stop.

Signals:
- loop: the user keeps asking for near-identical things
- velocity-collapse: the user's messages got much shorter and slower
- scope-creep: each request is longer than the last and adds more questions
- saturation: long answers were given and the user keeps asking for more

acknowledge returns a fixed acknowledgement. Use it when nothing needs saying.`
}
