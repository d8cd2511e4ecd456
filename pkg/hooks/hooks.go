// Package hooks runs user-configured shell commands on chat session events,
// most usefully when a conversation triggers.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zhy0216/offramp/pkg/logger"
	"github.com/zhy0216/offramp/pkg/ops"
	"github.com/zhy0216/offramp/pkg/types"
	"github.com/zhy0216/offramp/pkg/util"
)

// Events a hook can be attached to.
const (
	EventSessionStart = string(types.EventSessionStart)
	EventTriggered    = string(types.EventTriggered)
	EventSessionEnd   = string(types.EventSessionEnd)
)

// DefaultTimeout bounds a hook that sets no timeout of its own.
const DefaultTimeout = 10 * time.Second

// PluginConfig defines a plugin with its hooks.
type PluginConfig struct {
	Name    string                  `json:"name"`
	Enabled *bool                   `json:"enabled,omitempty"`
	Hooks   map[string][]HookConfig `json:"hooks"`
}

// HookConfig defines a single hook. Timeout is in seconds.
type HookConfig struct {
	Command  string     `json:"command"`
	Match    *MatchRule `json:"match,omitempty"`
	Blocking *bool      `json:"blocking,omitempty"`
	Timeout  int        `json:"timeout,omitempty"`
}

// MatchRule defines conditions for when a hook runs. Signal is a
// "|"-separated list; the hook runs if any of them fired.
type MatchRule struct {
	Signal string `json:"signal,omitempty"`
}

// HookContext provides event context for hook execution.
type HookContext struct {
	Event            string
	SessionID        string
	Model            string
	UserMessage      string
	AssistantMessage string
	Signals          []string
	MessageCount     int
	TranscriptPath   string
}

// HookManager manages plugins and runs hooks.
type HookManager struct {
	plugins []PluginConfig
	exec    ops.ExecOps
	wg      sync.WaitGroup // background hooks
}

// NewHookManager creates a HookManager with only enabled plugins.
func NewHookManager(plugins []PluginConfig) *HookManager {
	var active []PluginConfig
	for _, p := range plugins {
		if p.Enabled != nil && !*p.Enabled {
			continue
		}
		active = append(active, p)
	}
	return &HookManager{plugins: active, exec: &ops.RealExecOps{}}
}

// SetExec replaces the command runner.
func (m *HookManager) SetExec(e ops.ExecOps) {
	m.exec = e
}

// GetPlugins returns the enabled plugins.
func (m *HookManager) GetPlugins() []PluginConfig {
	if m == nil {
		return nil
	}
	return m.plugins
}

// matchesRule checks if a hook's match rule applies to any fired signal.
func matchesRule(rule *MatchRule, signals []string) bool {
	if rule == nil || rule.Signal == "" {
		return true
	}
	for _, want := range strings.Split(rule.Signal, "|") {
		for _, s := range signals {
			if strings.EqualFold(strings.TrimSpace(want), s) {
				return true
			}
		}
	}
	return false
}

// buildEnv returns the process environment plus OFFRAMP_* event variables.
func buildEnv(hctx *HookContext) []string {
	env := append(os.Environ(),
		"OFFRAMP_EVENT="+hctx.Event,
		"OFFRAMP_SESSION_ID="+hctx.SessionID,
		"OFFRAMP_MODEL="+hctx.Model,
		"OFFRAMP_USER_MESSAGE="+hctx.UserMessage,
		"OFFRAMP_ASSISTANT_MESSAGE="+hctx.AssistantMessage,
		"OFFRAMP_MESSAGE_COUNT="+strconv.Itoa(hctx.MessageCount),
	)
	if len(hctx.Signals) > 0 {
		env = append(env, "OFFRAMP_SIGNALS="+strings.Join(hctx.Signals, ","))
	}
	if hctx.TranscriptPath != "" {
		env = append(env, "OFFRAMP_TRANSCRIPT="+hctx.TranscriptPath)
	}
	return env
}

// Run executes every matching hook for hctx.Event in plugin order. Blocking
// hooks (the default) run in turn and their trimmed stdout is returned;
// non-blocking hooks run in the background and their output is discarded;
// Wait blocks until they are done.
// Failed blocking hooks are joined into the returned error; the remaining
// hooks still run.
func (m *HookManager) Run(ctx context.Context, hctx *HookContext) ([]string, error) {
	if m == nil {
		return nil, nil
	}
	log := logger.C(ctx).With().Str("event", hctx.Event).Logger()

	var outputs []string
	var errs []error
	for _, p := range m.plugins {
		for _, h := range p.Hooks[hctx.Event] {
			if h.Command == "" || !matchesRule(h.Match, hctx.Signals) {
				continue
			}
			env := buildEnv(hctx)
			if h.Blocking != nil && !*h.Blocking {
				name := p.Name
				m.wg.Go(func() {
					if _, err := m.runOne(context.WithoutCancel(ctx), h, env); err != nil {
						log.Warn().Err(err).Str("plugin", name).Msg("background hook failed")
					}
				})
				continue
			}

			out, err := m.runOne(ctx, h, env)
			if err != nil {
				errs = append(errs, fmt.Errorf("plugin %s: %w", p.Name, err))
				continue
			}
			log.Debug().Str("plugin", p.Name).Str("output", util.Preview(out, 80)).Msg("hook ran")
			if out != "" {
				outputs = append(outputs, out)
			}
		}
	}
	return outputs, errors.Join(errs...)
}

// Wait blocks until every background hook started by Run has exited. Each
// one is bounded by its own timeout.
func (m *HookManager) Wait() {
	if m == nil {
		return
	}
	m.wg.Wait()
}

func (m *HookManager) runOne(ctx context.Context, h HookConfig, env []string) (string, error) {
	timeout := DefaultTimeout
	if h.Timeout > 0 {
		timeout = time.Duration(h.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := ops.Shell(ctx, m.exec, h.Command, env)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("hook %q timed out after %s", h.Command, timeout)
		}
		return "", fmt.Errorf("hook %q: %w", h.Command, err)
	}
	if !res.OK() {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = "no stderr"
		}
		return "", fmt.Errorf("hook %q exited with status %d: %s", h.Command, res.ExitCode, util.TruncateOutput(msg, 200))
	}
	return strings.TrimSpace(res.Stdout), nil
}
