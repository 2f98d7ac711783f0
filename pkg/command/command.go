package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/metrics"
	"github.com/google/shlex"
)

// Options tunes a single command invocation
type Options struct {
	// Dir is the working directory, empty for the current one
	Dir string

	// Retries is the number of additional attempts after a failure
	Retries int

	// Quiet suppresses logging of the command output
	Quiet bool
}

// Result is the outcome of a command
type Result struct {
	ExitCode int
	Output   string
}

// Runner executes external commands
type Runner interface {
	Run(ctx context.Context, args []string, opts Options) (Result, error)
}

// ExternalCommandError reports a command that failed after exhausting its retries
type ExternalCommandError struct {
	Args     []string
	ExitCode int
	Output   string
	Stderr   string
	Err      error
}

func (e *ExternalCommandError) Error() string {
	msg := fmt.Sprintf("command %q failed with exit code %d", strings.Join(e.Args, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExternalCommandError) Unwrap() error {
	return e.Err
}

// Executor runs commands on the local host
type Executor struct {
	dryRun     bool
	retryDelay time.Duration
}

// NewExecutor creates an executor. A dry-run executor logs commands instead of running them.
func NewExecutor(dryRun bool) *Executor {
	return &Executor{
		dryRun:     dryRun,
		retryDelay: 5 * time.Second,
	}
}

// WithRetryDelay sets the fixed delay between attempts
func (e *Executor) WithRetryDelay(d time.Duration) *Executor {
	e.retryDelay = d
	return e
}

// Run executes args, retrying failures up to opts.Retries times
func (e *Executor) Run(ctx context.Context, args []string, opts Options) (Result, error) {
	if len(args) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("no command specified")
	}

	// resolved per call so a run log attached later still sees command output
	logger := log.WithComponent("command")

	if e.dryRun {
		logger.Info().Str("dir", opts.Dir).Msgf("Dry run: %s", strings.Join(args, " "))
		return Result{}, nil
	}

	name := filepath.Base(args[0])
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CommandDuration, name)

	var (
		stdout, stderr bytes.Buffer
		exitCode       int
	)
	err := retry.Do(
		func() error {
			stdout.Reset()
			stderr.Reset()

			cmd := exec.CommandContext(ctx, args[0], args[1:]...) // #nosec G204
			cmd.Dir = opts.Dir
			cmd.Stdout, cmd.Stderr = &stdout, &stderr

			runErr := cmd.Run()
			exitCode = exitCodeOf(runErr)
			return runErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(opts.Retries+1)),
		retry.Delay(e.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).Uint("attempt", n+1).Msgf("Retrying: %s", strings.Join(args, " "))
		}),
	)

	result := Result{ExitCode: exitCode, Output: stdout.String()}
	if !opts.Quiet {
		logger.Debug().Int("rc", exitCode).Str("output", strings.TrimSpace(result.Output)).
			Msg(strings.Join(args, " "))
	}

	if err != nil {
		metrics.CommandFailures.WithLabelValues(name).Inc()
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return result, ctxErr
		}
		return result, &ExternalCommandError{
			Args:     args,
			ExitCode: exitCode,
			Output:   result.Output,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}
	return result, nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Tool binds an executable prefix (e.g. "oc --kubeconfig /root/bm/kubeconfig") to a runner
type Tool struct {
	prefix []string
	runner Runner
}

// NewTool parses a shell-style command prefix
func NewTool(prefix string, runner Runner) (*Tool, error) {
	tokens, err := shlex.Split(prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", prefix, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return &Tool{prefix: tokens, runner: runner}, nil
}

// Run executes the tool with additional arguments
func (t *Tool) Run(ctx context.Context, opts Options, args ...string) (Result, error) {
	full := make([]string, 0, len(t.prefix)+len(args))
	full = append(full, t.prefix...)
	full = append(full, args...)
	return t.runner.Run(ctx, full, opts)
}

// Prefix returns the tokenized executable prefix
func (t *Tool) Prefix() []string {
	return append([]string(nil), t.prefix...)
}
