package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRun(t *testing.T) {
	e := NewExecutor(false)

	res, err := e.Run(context.Background(), []string{"sh", "-c", "echo hello"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Output)
}

func TestExecutorWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0644))

	res, err := NewExecutor(false).Run(context.Background(), []string{"ls"}, Options{Dir: dir})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "marker")
}

func TestExecutorFailure(t *testing.T) {
	e := NewExecutor(false).WithRetryDelay(time.Millisecond)

	res, err := e.Run(context.Background(), []string{"sh", "-c", "echo boom >&2; exit 3"}, Options{Retries: 2})
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)

	var cmdErr *ExternalCommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Error(), "boom")
	assert.Contains(t, cmdErr.Error(), "exit code 3")
}

func TestExecutorRetriesUntilSuccess(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "attempts")

	// Fails on the first two attempts, succeeds on the third
	script := `n=$(cat ` + counter + ` 2>/dev/null || echo 0); n=$((n+1)); echo $n > ` + counter + `; [ $n -ge 3 ]`
	e := NewExecutor(false).WithRetryDelay(time.Millisecond)

	res, err := e.Run(context.Background(), []string{"sh", "-c", script}, Options{Retries: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	data, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, "3\n", string(data))
}

func TestExecutorMissingBinary(t *testing.T) {
	res, err := NewExecutor(false).Run(context.Background(), []string{"/nonexistent/fleetload-binary"}, Options{})
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestExecutorDryRun(t *testing.T) {
	res, err := NewExecutor(true).Run(context.Background(), []string{"sh", "-c", "exit 1"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestExecutorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor(false).Run(ctx, []string{"sleep", "5"}, Options{Retries: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutorNoArgs(t *testing.T) {
	_, err := NewExecutor(false).Run(context.Background(), nil, Options{})
	assert.Error(t, err)
}

type recordingRunner struct {
	args []string
}

func (r *recordingRunner) Run(_ context.Context, args []string, _ Options) (Result, error) {
	r.args = args
	return Result{}, nil
}

func TestTool(t *testing.T) {
	rec := &recordingRunner{}
	tool, err := NewTool(`oc --kubeconfig "/root/bm/my kubeconfig"`, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"oc", "--kubeconfig", "/root/bm/my kubeconfig"}, tool.Prefix())

	_, err = tool.Run(context.Background(), Options{}, "get", "nodes", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, []string{"oc", "--kubeconfig", "/root/bm/my kubeconfig", "get", "nodes", "-o", "json"}, rec.args)
}

func TestNewToolErrors(t *testing.T) {
	_, err := NewTool("", &recordingRunner{})
	assert.Error(t, err)

	_, err = NewTool(`oc "unterminated`, &recordingRunner{})
	assert.Error(t, err)
}
