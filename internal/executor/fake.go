package executor

import (
	"context"
	"fmt"
	"sync"
)

// FakeRunner returns scripted results keyed by the command line. It is
// used by tests of every package that shells out.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string][]Result
	hooks     map[string]func(Command) Result
	calls     []Command
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: make(map[string][]Result),
		hooks:     make(map[string]func(Command) Result),
	}
}

// On queues res for the next call whose String() equals line. When the
// queue for a line has a single entry left it is reused for later calls.
func (f *FakeRunner) On(line string, res Result) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = append(f.responses[line], res)
	return f
}

// OnStdout is On with a successful result carrying stdout.
func (f *FakeRunner) OnStdout(line, stdout string) *FakeRunner {
	return f.On(line, Result{Stdout: stdout})
}

// OnFunc installs a hook for commands named name, used when the arguments
// are not known up front (temp file paths).
func (f *FakeRunner) OnFunc(name string, hook func(Command) Result) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[name] = hook
	return f
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd Command) Result {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	line := cmd.String()

	if queue := f.responses[line]; len(queue) > 0 {
		res := queue[0]
		if len(queue) > 1 {
			f.responses[line] = queue[1:]
		}
		f.mu.Unlock()
		return res
	}

	hook := f.hooks[cmd.Name]
	f.mu.Unlock()

	if hook != nil {
		return hook(cmd)
	}
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1, Err: err}
	}
	return Result{
		ExitCode: -1,
		Err:      fmt.Errorf("%w: %s: no scripted response", ErrSpawn, line),
	}
}

// Calls returns the commands run so far.
func (f *FakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times line was run.
func (f *FakeRunner) CallCount(line string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.String() == line {
			n++
		}
	}
	return n
}
