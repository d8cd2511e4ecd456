package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/zhy0216/offramp/pkg/chat"
	"github.com/zhy0216/offramp/pkg/config"
	"github.com/zhy0216/offramp/pkg/hooks"
	"github.com/zhy0216/offramp/pkg/llm"
	"github.com/zhy0216/offramp/pkg/logger"
	"github.com/zhy0216/offramp/pkg/server"
	"github.com/zhy0216/offramp/pkg/types"
	"github.com/zhy0216/offramp/pkg/util"
)

// autoSavePath is the --save value used when the flag has no argument.
const autoSavePath = "auto"

func runChat(args []string, st streams) error {
	fs := newFlagSet("chat", "chat [--delay DUR] [--reply-probability P] [--save[=PATH]]", st)
	delay := fs.Duration("delay", types.DefaultChatDelay, "wait before deciding whether to reply (default from config)")
	prob := fs.Float64("reply-probability", types.DefaultReplyProbability, "chance of forwarding a message to the model, 0 to never reply (default from config)")
	save := fs.String("save", "", "write the transcript here on exit; without a value, save under the config directory")
	fs.Lookup("save").NoOptDefVal = autoSavePath
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg, err := loadConfig(st)
	if err != nil {
		return err
	}
	if fs.Changed("delay") {
		cfg.ChatDelay = *delay
	}
	if fs.Changed("reply-probability") {
		cfg.ReplyProbability = *prob
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var provider llm.Provider
	if cfg.ReplyProbability > 0 {
		if provider, err = llm.NewProvider(cfg); err != nil {
			return err
		}
	}

	opts := chat.Options{
		Delay:            cfg.ChatDelay,
		ReplyProbability: cfg.ReplyProbability,
		MaxTokens:        cfg.MaxOutputTokens,
		SystemPrompt:     cfg.SystemPrompt,
		Trigger:          cfg.Trigger,
	}
	if len(cfg.Plugins) > 0 {
		opts.Hooks = hooks.NewHookManager(cfg.Plugins)
	}
	session := chat.NewSession(provider, opts)
	session.SetOutput(st.out)

	switch *save {
	case "":
	case autoSavePath:
		if err := config.EnsureWorkspace(); err != nil {
			return err
		}
		dir, err := config.TranscriptDir()
		if err != nil {
			return err
		}
		path, err := util.ValidatePath(filepath.Join(dir, session.ID+".jsonl"), dir)
		if err != nil {
			return err
		}
		session.SetSavePath(path)
	default:
		path, err := util.ValidatePath(*save, "")
		if err != nil {
			return err
		}
		session.SetSavePath(path)
	}

	if provider != nil {
		fmt.Fprintf(st.out, "%sofframp%s (model: %s, reply probability: %.2f)\n",
			types.ColorGreen, types.ColorReset, provider.GetModel(), cfg.ReplyProbability)
	}
	fmt.Fprintf(st.out, "Commands: /q (quit), /c (clear), /check, /model, /usage\n\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := handleInterrupts(session, cancel, st)
	defer stop()

	return session.Run(ctx, st.in)
}

// handleInterrupts cancels the turn in progress on Ctrl-C. A second Ctrl-C
// within a second, or SIGTERM, ends the session (saving the transcript and
// running the session_end hooks) and exits.
func handleInterrupts(session *chat.Session, cancel context.CancelFunc, st streams) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		var lastSig time.Time
		for {
			select {
			case <-done:
				return
			case sig := <-sigChan:
				now := time.Now()
				if sig == syscall.SIGTERM || now.Sub(lastSig) < time.Second {
					cancel()
					if err := session.End(context.Background()); err != nil {
						fmt.Fprintf(st.err, "Error: %v\n", err)
					}
					fmt.Fprintln(st.out, "\nGoodbye!")
					os.Exit(0)
				}
				lastSig = now
				if !session.Interrupt() {
					fmt.Fprintf(st.out, "\n%s(press Ctrl-C again to quit)%s\n", types.ColorGray, types.ColorReset)
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

func runServe(args []string, st streams) error {
	fs := newFlagSet("serve", "serve", st)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	if _, err := loadConfig(st); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Named("serve").Debug().Msg("starting MCP server")
	return server.Serve(ctx, st.in, st.out)
}
