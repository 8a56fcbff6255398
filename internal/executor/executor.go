// Package executor runs external desktop utilities (wmctrl, xprop, nmcli,
// xrandr, ffmpeg) and captures their output.
//
// Every call spawns one OS process. There is no pooling or batching and no
// retry; callers decide what a failure means for them.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/externos/hubd/internal/logger"
)

// ErrSpawn is wrapped by Result.Err when the process could not be started.
var ErrSpawn = errors.New("spawn failed")

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Command is a single invocation of an external program.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the daemon's cwd.
	Dir string
	// Env entries are appended to the inherited environment.
	Env []string
}

// Cmd builds a Command from a program name and arguments.
func Cmd(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// String renders the command line. Arguments are not quoted.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is what a finished command produced.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	// Err is nil on success, wraps ErrSpawn if the process never started,
	// is an *ExitError on non-zero exit, or the context error.
	Err error
}

// Failed reports whether the command should be treated as an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Contains reports whether stdout or stderr contains s, case-insensitively.
func (r Result) Contains(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(strings.ToLower(r.Stdout), s) ||
		strings.Contains(strings.ToLower(r.Stderr), s)
}

// Runner runs commands synchronously.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// ExecRunner runs commands as real subprocesses.
type ExecRunner struct{}

// Run executes cmd and waits for it to exit.
func (ExecRunner) Run(ctx context.Context, cmd Command) Result {
	log := logger.WithComponent("executor")

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Err = fmt.Errorf("%s: %w", cmd.Name, ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		res.Err = &ExitError{Command: cmd.Name, Code: res.ExitCode, Stderr: res.Stderr}
	default:
		res.ExitCode = -1
		res.Err = fmt.Errorf("%w: %s: %v", ErrSpawn, cmd.Name, err)
	}

	log.Debug().
		Str("cmd", cmd.String()).
		Int("exit", res.ExitCode).
		Dur("took", res.Duration).
		Err(res.Err).
		Msg("command finished")

	return res
}

// Executor adds asynchronous continuations on top of a Runner.
type Executor struct {
	runner Runner
}

// New returns an Executor backed by runner. A nil runner means ExecRunner.
func New(runner Runner) *Executor {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Executor{runner: runner}
}

// Run executes cmd synchronously.
func (e *Executor) Run(ctx context.Context, cmd Command) Result {
	return e.runner.Run(ctx, cmd)
}

// Output runs cmd and returns stdout, or the failure.
func (e *Executor) Output(ctx context.Context, cmd Command) (string, error) {
	res := e.runner.Run(ctx, cmd)
	return res.Stdout, res.Err
}

// Go runs cmd in the background and hands the result to done. Callers that
// must stay responsive to cancellation, such as a Wi-Fi connect, wait on
// done alongside their context.
func (e *Executor) Go(ctx context.Context, cmd Command, done func(Result)) {
	go func() {
		res := e.runner.Run(ctx, cmd)
		if done != nil {
			done(res)
		}
	}()
}

// Available reports whether program can be found in PATH.
func Available(program string) bool {
	_, err := exec.LookPath(program)
	return err == nil
}
