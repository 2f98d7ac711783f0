// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"strings"
	"sync"

	"github.com/cuemby/fleetload/pkg/command"
)

// Call is one recorded invocation
type Call struct {
	Args []string
	Dir  string
}

// Line returns the invocation as a single space separated string
func (c Call) Line() string {
	return strings.Join(c.Args, " ")
}

type rule struct {
	contains string
	result   command.Result
	err      error
}

// Runner records calls and answers them from registered rules. The first rule
// whose pattern is contained in the command line wins; unmatched commands
// succeed with empty output.
type Runner struct {
	mu    sync.Mutex
	calls []Call
	rules []rule

	// Handler, when set, answers every call instead of the rules
	Handler func(args []string) (command.Result, error)
}

// New creates an empty fake runner
func New() *Runner {
	return &Runner{}
}

// On answers commands containing pattern with output and exit code 0
func (r *Runner) On(pattern, output string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{contains: pattern, result: command.Result{Output: output}})
	return r
}

// Fail answers commands containing pattern with an ExternalCommandError
func (r *Runner) Fail(pattern string, exitCode int) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{contains: pattern, result: command.Result{ExitCode: exitCode}, err: failure(pattern, exitCode)})
	return r
}

func failure(pattern string, exitCode int) error {
	return &command.ExternalCommandError{Args: strings.Fields(pattern), ExitCode: exitCode, Stderr: "scripted failure"}
}

// Run implements command.Runner
func (r *Runner) Run(ctx context.Context, args []string, opts command.Options) (command.Result, error) {
	if err := ctx.Err(); err != nil {
		return command.Result{ExitCode: -1}, err
	}

	r.mu.Lock()
	r.calls = append(r.calls, Call{Args: append([]string(nil), args...), Dir: opts.Dir})
	handler := r.Handler
	rules := append([]rule(nil), r.rules...)
	r.mu.Unlock()

	if handler != nil {
		return handler(args)
	}

	line := strings.Join(args, " ")
	for _, rl := range rules {
		if strings.Contains(line, rl.contains) {
			return rl.result, rl.err
		}
	}
	return command.Result{}, nil
}

// Calls returns a copy of every recorded call
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Lines returns every recorded call as a command line
func (r *Runner) Lines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.Line()
	}
	return lines
}

// Count returns how many calls contained pattern
func (r *Runner) Count(pattern string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.Contains(line, pattern) {
			n++
		}
	}
	return n
}
