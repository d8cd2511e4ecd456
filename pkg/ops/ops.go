// Package ops abstracts process execution so callers can be tested without
// spawning commands.
package ops

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ExecOps abstracts command execution for testability.
type ExecOps interface {
	// Run executes a command and returns its output.
	// exitCode is the process exit code (0 = success).
	// err is non-nil only for system-level failures (context cancelled, etc.).
	Run(ctx context.Context, name string, args []string, env []string) (stdout, stderr string, exitCode int, err error)
	// LookPath searches for an executable in PATH.
	LookPath(file string) (string, error)
}

// RealExecOps implements ExecOps using os/exec.
type RealExecOps struct{}

func (r *RealExecOps) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (r *RealExecOps) Run(ctx context.Context, name string, args []string, env []string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// children of a killed shell can hold the output pipes open
	cmd.WaitDelay = 500 * time.Millisecond
	if len(env) > 0 {
		cmd.Env = env
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return stdoutBuf.String(), stderrBuf.String(), -1, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdoutBuf.String(), stderrBuf.String(), exitErr.ExitCode(), nil
		}
		return stdoutBuf.String(), stderrBuf.String(), -1, err
	}
	return stdoutBuf.String(), stderrBuf.String(), 0, nil
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// OK reports whether the command exited with status 0.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Shell runs script through "sh -c" with env as the full environment.
func Shell(ctx context.Context, e ExecOps, script string, env []string) (Result, error) {
	start := time.Now()
	stdout, stderr, code, err := e.Run(ctx, "sh", []string{"-c", script}, env)
	return Result{Stdout: stdout, Stderr: stderr, ExitCode: code, Duration: time.Since(start)}, err
}
