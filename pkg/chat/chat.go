// Package chat runs a deliberately low-effort conversation loop: it waits
// after each message, only sometimes asks a model for a one-line reply, and
// reports when the trigger detectors say the conversation has run its course.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhy0216/offramp/pkg/hooks"
	"github.com/zhy0216/offramp/pkg/llm"
	"github.com/zhy0216/offramp/pkg/logger"
	"github.com/zhy0216/offramp/pkg/transcript"
	"github.com/zhy0216/offramp/pkg/trigger"
	"github.com/zhy0216/offramp/pkg/types"
	"github.com/zhy0216/offramp/pkg/util"
)

// Options configures a Session. Zero values fall back to the defaults in
// package types, except ReplyProbability where zero means never reply.
type Options struct {
	Delay            time.Duration
	ReplyProbability float64
	MaxTokens        int64
	SystemPrompt     string
	HistoryLimit     int
	Trigger          trigger.Options

	// SavePath, when set, receives the transcript when the session ends.
	SavePath string

	// Hooks run on session start, on each trigger and on session end.
	Hooks *hooks.HookManager

	// Rand and Now are replaceable for tests.
	Rand func() float64
	Now  func() time.Time
}

// Session holds one chat loop's transcript and collaborators.
type Session struct {
	ID string

	provider llm.Provider // nil disables replies
	opts     Options
	messages []types.Message
	output   io.Writer
	events   *types.EventEmitter
	usage    types.TokenUsage
	signals  []trigger.Signal // last reported signal set

	mu         sync.Mutex
	turnCancel context.CancelFunc

	endOnce sync.Once
	endErr  error
}

// NewSession creates a Session. A nil provider is allowed and behaves like a
// reply probability of zero.
func NewSession(provider llm.Provider, opts Options) *Session {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = types.DefaultMaxOutputTokens
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = types.DefaultSystemPrompt
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = types.DefaultHistoryLimit
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		ID:       uuid.NewString(),
		provider: provider,
		opts:     opts,
		output:   os.Stdout,
		events:   types.NewEventEmitter(),
	}
	s.events.Subscribe(s.defaultOutputHandler)
	return s
}

// SetOutput redirects what the default output handler prints.
func (s *Session) SetOutput(w io.Writer) {
	s.output = w
}

// SetSavePath changes where Save writes the transcript. An empty path
// disables saving.
func (s *Session) SetSavePath(path string) {
	s.opts.SavePath = path
}

// Events returns the session's event emitter.
func (s *Session) Events() *types.EventEmitter {
	return s.events
}

// Messages returns a copy of the transcript so far.
func (s *Session) Messages() []types.Message {
	return slices.Clone(s.messages)
}

// Usage returns accumulated token usage.
func (s *Session) Usage() types.TokenUsage {
	return s.usage
}

// Context returns ctx annotated with the session id for logging.
func (s *Session) Context(ctx context.Context) context.Context {
	return logger.WithSession(ctx, s.ID)
}

// Run reads lines from in until EOF, an exit command, or cancellation.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	ctx = s.Context(ctx)
	log := logger.C(ctx)
	log.Info().
		Dur("delay", s.opts.Delay).
		Float64("reply_probability", s.opts.ReplyProbability).
		Bool("model", s.provider != nil).
		Msg("chat session started")
	s.events.Emit(types.ChatEvent{Type: types.EventSessionStart})
	s.runHooks(ctx, hooks.EventSessionStart, nil)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var runErr error
	for {
		fmt.Fprint(s.output, "> ")
		if !scanner.Scan() {
			runErr = scanner.Err()
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if handled, exit := s.HandleCommand(input); handled {
			if exit {
				break
			}
			continue
		}
		turnCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.turnCancel = cancel
		s.mu.Unlock()

		err := s.ProcessInput(turnCtx, input)
		cancel()

		s.mu.Lock()
		s.turnCancel = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			break
		}
		if err != nil {
			if turnCtx.Err() == context.Canceled {
				fmt.Fprintf(s.output, "%s[interrupted]%s\n", types.ColorYellow, types.ColorReset)
				continue
			}
			log.Warn().Err(err).Msg("reply failed")
		}
	}

	return s.finish(ctx, runErr)
}

// End saves the transcript, runs the session_end hooks and waits for any
// background hooks to exit. Only the first call, from End or from Run
// returning, does anything; later calls return its error.
func (s *Session) End(ctx context.Context) error {
	return s.finish(s.Context(ctx), nil)
}

func (s *Session) finish(ctx context.Context, runErr error) error {
	s.endOnce.Do(func() {
		ctx := context.WithoutCancel(ctx)
		log := logger.C(ctx)
		if err := s.Save(); err != nil {
			log.Error().Err(err).Msg("saving transcript failed")
			if runErr == nil {
				runErr = err
			}
		}
		s.runHooks(ctx, hooks.EventSessionEnd, trigger.Result{Signals: s.signals}.Strings())
		s.opts.Hooks.Wait()
		s.events.Emit(types.ChatEvent{Type: types.EventSessionEnd, Error: runErr})
		log.Info().
			Int("messages", len(s.messages)).
			Int("chars", util.EstimateMessageChars(s.messages)).
			Int64("total_tokens", s.usage.TotalTokens).
			Msg("chat session ended")
		s.endErr = runErr
	})
	return s.endErr
}

// Interrupt cancels the turn in progress and reports whether there was one.
// The user message stays in the transcript.
func (s *Session) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnCancel == nil {
		return false
	}
	s.turnCancel()
	s.turnCancel = nil
	return true
}

// HandleCommand processes a command and returns true if handled.
func (s *Session) HandleCommand(input string) (handled bool, exit bool) {
	switch input {
	case "/q", "exit", "quit":
		if s.usage.TotalTokens > 0 {
			fmt.Fprintf(s.output, "%sSession usage: %d prompt + %d completion = %d total tokens%s\n",
				types.ColorGray, s.usage.PromptTokens, s.usage.CompletionTokens, s.usage.TotalTokens, types.ColorReset)
		}
		return true, true
	case "/c", "clear":
		s.messages = nil
		s.signals = nil
		fmt.Fprintln(s.output, "Conversation cleared.")
		return true, false
	case "/check":
		res, err := s.check()
		if err != nil {
			fmt.Fprintf(s.output, "%scheck failed: %v%s\n", types.ColorYellow, err, types.ColorReset)
		} else if !res.Triggered {
			fmt.Fprintln(s.output, "No signals.")
		} else {
			fmt.Fprintf(s.output, "Signals: %s\n", strings.Join(res.Strings(), ", "))
		}
		return true, false
	case "/usage":
		if s.usage.TotalTokens == 0 {
			fmt.Fprintln(s.output, "No tokens used yet.")
		} else {
			fmt.Fprintf(s.output, "Session usage:\n  Prompt tokens:     %d\n  Completion tokens: %d\n  Total tokens:      %d\n",
				s.usage.PromptTokens, s.usage.CompletionTokens, s.usage.TotalTokens)
		}
		return true, false
	}

	if input == "/model" || strings.HasPrefix(input, "/model ") {
		if s.provider == nil {
			fmt.Fprintln(s.output, "No model configured.")
			return true, false
		}
		newModel := strings.TrimSpace(strings.TrimPrefix(input, "/model"))
		if newModel == "" {
			fmt.Fprintf(s.output, "Current model: %s\n", s.provider.GetModel())
		} else {
			s.provider.SetModel(newModel)
			fmt.Fprintf(s.output, "Model changed to: %s\n", newModel)
		}
		return true, false
	}

	return false, false
}

// ProcessInput records a user message, waits, maybe replies, and then
// evaluates the transcript. It returns ctx.Err() if cancelled during the wait
// or the model call.
func (s *Session) ProcessInput(ctx context.Context, input string) error {
	if input == "" {
		return nil
	}
	log := logger.C(ctx)

	s.append(types.RoleUser, input)
	s.events.Emit(types.ChatEvent{Type: types.EventUserMessage, Content: input})

	s.events.Emit(types.ChatEvent{Type: types.EventWaitStart})
	if err := s.wait(ctx); err != nil {
		return err
	}

	if s.provider == nil || s.opts.Rand() >= s.opts.ReplyProbability {
		log.Debug().Msg("reply skipped")
		s.events.Emit(types.ChatEvent{Type: types.EventReplySkipped})
		s.evaluate(ctx)
		return nil
	}

	reply, err := s.reply(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.events.Emit(types.ChatEvent{Type: types.EventReply, Error: err})
		return err
	}
	if reply == "" {
		s.events.Emit(types.ChatEvent{Type: types.EventReplySkipped})
	} else {
		s.append(types.RoleAssistant, reply)
		s.events.Emit(types.ChatEvent{Type: types.EventReply, Content: reply})
	}
	s.evaluate(ctx)
	return nil
}

// wait blocks for the configured delay unless ctx is cancelled first.
func (s *Session) wait(ctx context.Context) error {
	if s.opts.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.opts.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reply asks the model for a short answer over the trailing history,
// shortening the history when the model reports a context overflow.
func (s *Session) reply(ctx context.Context) (string, error) {
	log := logger.C(ctx)
	limit := s.opts.HistoryLimit

	var resp *types.ChatResponse
	var err error
	for retries := 0; retries <= types.MaxOverflowRetries; retries++ {
		history := s.messages
		if len(history) > limit {
			history = history[len(history)-limit:]
		}
		resp, err = s.provider.Chat(ctx, history,
			types.WithSystemPrompt(s.opts.SystemPrompt),
			types.WithMaxTokens(s.opts.MaxTokens),
		)
		if err == nil {
			break
		}
		if !llm.IsContextOverflow(err) || limit <= 1 {
			break
		}
		limit /= 2
		log.Warn().Int("history", limit).Msg("context overflow, retrying with shorter history")
	}
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}

	s.usage.PromptTokens += resp.Usage.PromptTokens
	s.usage.CompletionTokens += resp.Usage.CompletionTokens
	s.usage.TotalTokens += resp.Usage.TotalTokens

	text := util.StripCodeFence(resp.Content)
	log.Debug().
		Str("finish_reason", resp.FinishReason).
		Int64("tokens", resp.Usage.TotalTokens).
		Str("reply", util.Preview(text, 80)).
		Msg("model replied")
	return text, nil
}

// check evaluates the trailing transcript within the accepted length.
func (s *Session) check() (trigger.Result, error) {
	conv := s.messages
	if len(conv) > types.MaxConversationMessages {
		conv = conv[len(conv)-types.MaxConversationMessages:]
	}
	return trigger.Check(conv, s.opts.Trigger)
}

// evaluate emits EventTriggered when the set of firing signals changes to a
// non-empty set.
func (s *Session) evaluate(ctx context.Context) {
	res, err := s.check()
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("trigger check failed")
		return
	}
	if slices.Equal(res.Signals, s.signals) {
		return
	}
	s.signals = res.Signals
	if !res.Triggered {
		return
	}
	logger.C(ctx).Info().Strs("signals", res.Strings()).Msg("conversation triggered")
	s.events.Emit(types.ChatEvent{Type: types.EventTriggered, Signals: res.Strings()})
	s.runHooks(ctx, hooks.EventTriggered, res.Strings())
}

// runHooks runs the configured hooks for event and shows their output.
func (s *Session) runHooks(ctx context.Context, event string, signals []string) {
	if s.opts.Hooks == nil {
		return
	}
	hctx := &hooks.HookContext{
		Event:            event,
		SessionID:        s.ID,
		UserMessage:      s.lastMessage(types.RoleUser),
		AssistantMessage: s.lastMessage(types.RoleAssistant),
		Signals:          signals,
		MessageCount:     len(s.messages),
		TranscriptPath:   s.opts.SavePath,
	}
	if s.provider != nil {
		hctx.Model = s.provider.GetModel()
	}

	outputs, err := s.opts.Hooks.Run(ctx, hctx)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("event", event).Msg("hook failed")
	}
	for _, out := range outputs {
		s.events.Emit(types.ChatEvent{Type: types.EventHookOutput, Content: out})
	}
}

func (s *Session) lastMessage(role types.Role) string {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == role {
			return s.messages[i].Content
		}
	}
	return ""
}

func (s *Session) append(role types.Role, content string) {
	s.messages = append(s.messages, types.Message{
		Role:      role,
		Content:   content,
		Timestamp: s.opts.Now().UnixMilli(),
	})
}

// Save writes the transcript to Options.SavePath, if set.
func (s *Session) Save() error {
	if s.opts.SavePath == "" {
		return nil
	}
	if err := transcript.WriteFile(s.opts.SavePath, s.messages); err != nil {
		return fmt.Errorf("cannot save transcript: %w", err)
	}
	return nil
}

// defaultOutputHandler renders events for a terminal.
func (s *Session) defaultOutputHandler(e types.ChatEvent) {
	switch e.Type {
	case types.EventSessionStart:
		fmt.Fprintf(s.output, "%sofframp chat (session %s). Type /q to quit.%s\n", types.ColorGray, s.ID, types.ColorReset)
	case types.EventWaitStart:
		if s.opts.Delay > 0 {
			fmt.Fprintf(s.output, "%s...%s\n", types.ColorGray, types.ColorReset)
		}
	case types.EventReply:
		if e.Error != nil {
			fmt.Fprintf(s.output, "%serror: %v%s\n", types.ColorYellow, e.Error, types.ColorReset)
			return
		}
		fmt.Fprintf(s.output, "%s%s%s\n", types.ColorGreen, e.Content, types.ColorReset)
	case types.EventTriggered:
		fmt.Fprintf(s.output, "%s[offramp: %s]%s\n", types.ColorYellow, strings.Join(e.Signals, ", "), types.ColorReset)
	case types.EventHookOutput:
		fmt.Fprintf(s.output, "%s%s%s\n", types.ColorGray, e.Content, types.ColorReset)
	case types.EventSessionEnd:
		if s.opts.SavePath != "" && e.Error == nil {
			fmt.Fprintf(s.output, "%sTranscript saved to %s%s\n", types.ColorGray, s.opts.SavePath, types.ColorReset)
		}
	}
}
