// Command offramp checks conversations for signs that continuing them has
// stopped being useful, and hosts a quiet chat loop and an MCP server built
// around that check.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/zhy0216/offramp/pkg/config"
	"github.com/zhy0216/offramp/pkg/logger"
	"github.com/zhy0216/offramp/pkg/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// exitCode ends the process with a status and no message.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func (e exitCode) ExitCode() int { return int(e) }

// streams holds the standard streams a command uses.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func main() {
	stopProfile := setupMemProfile()
	code := run(os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	stopProfile()
	os.Exit(code)
}

func run(args []string, st streams) int {
	err := dispatch(args, st)
	if err == nil {
		return 0
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(st.err, "Error: %v\n", err)
	return 1
}

func dispatch(args []string, st streams) error {
	if len(args) == 0 {
		printUsage(st.err)
		return exitCode(1)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "check":
		return runCheck(rest, st)
	case "chat":
		return runChat(rest, st)
	case "serve":
		return runServe(rest, st)
	case "version", "--version":
		fmt.Fprintf(st.out, "offramp %s\n", Version)
		return nil
	case "help", "-h", "--help":
		printUsage(st.out)
		return nil
	default:
		printUsage(st.err)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `offramp - notice when a conversation has stopped being useful

Usage:
  offramp check [--file PATH|-] [--format F] [--options PATH] [--detector NAME] [--json]
  offramp chat [--delay DUR] [--reply-probability P] [--save[=PATH]]
  offramp serve
  offramp version

check exits 0 when nothing fired, 2 when a signal fired and 1 on error.
Run "offramp <command> --help" for the flags of a command.
`)
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name, usage string, st streams) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(st.err)
	fs.Usage = func() {
		fmt.Fprintf(st.err, "Usage: offramp %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses args, turning --help into a clean exit.
func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitCode(0)
		}
		return err
	}
	return nil
}

// loadConfig loads configuration and starts logging on the error stream.
func loadConfig(st streams) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: st.err,
	})
	server.Version = Version
	return cfg, nil
}
