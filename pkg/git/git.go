package git

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetload/pkg/command"
)

// Repo is a git working copy driven through the command runner
type Repo struct {
	dir     string
	runner  command.Runner
	retries int
}

// NewRepo creates a repo accessor rooted at dir
func NewRepo(dir string, runner command.Runner) *Repo {
	return &Repo{dir: dir, runner: runner}
}

// WithRetries sets how many times push is retried
func (r *Repo) WithRetries(n int) *Repo {
	r.retries = n
	return r
}

// Dir returns the working copy directory
func (r *Repo) Dir() string {
	return r.dir
}

// Add stages a path
func (r *Repo) Add(ctx context.Context, path string) error {
	if _, err := r.git(ctx, 0, "add", path); err != nil {
		return fmt.Errorf("git add %s: %w", path, err)
	}
	return nil
}

// Commit records the staged changes with message
func (r *Repo) Commit(ctx context.Context, message string) error {
	if _, err := r.git(ctx, 0, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

// Push publishes local commits to the tracked remote
func (r *Repo) Push(ctx context.Context) error {
	if _, err := r.git(ctx, r.retries, "push"); err != nil {
		return fmt.Errorf("git push: %w", err)
	}
	return nil
}

func (r *Repo) git(ctx context.Context, retries int, args ...string) (command.Result, error) {
	full := append([]string{"git"}, args...)
	return r.runner.Run(ctx, full, command.Options{Dir: r.dir, Retries: retries, Quiet: true})
}
