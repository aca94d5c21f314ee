package process

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_CapturesOutputLines(t *testing.T) {
	var console bytes.Buffer
	r := NewExecRunner(&console)

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo one; echo two >&2; printf three"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.ElementsMatch(t, []string{"one", "two", "three"}, res.Output)
	assert.Contains(t, console.String(), "one")
	assert.Equal(t, "sh -c echo one; echo two >&2; printf three", res.Command)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo failing; exit 3"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNonZeroExit))
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, []string{"failing"}, res.Output)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{Name: "docgate-definitely-missing-tool"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrBinaryNotFound))
}

func TestExecRunner_EnvAndDir(t *testing.T) {
	dir := t.TempDir()
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", `echo "$DOCGATE_PROBE"; pwd`},
		Dir:  dir,
		Env:  map[string]string{"DOCGATE_PROBE": "probe-value"},
	})
	require.NoError(t, err)
	require.Len(t, res.Output, 2)
	assert.Equal(t, "probe-value", res.Output[0])
	assert.Contains(t, res.Output[1], dir)
}

func TestExecRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecRunner(nil).Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 5"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunnerFunc(t *testing.T) {
	var got Command
	r := RunnerFunc(func(_ context.Context, cmd Command) (*Result, error) {
		got = cmd
		return &Result{Command: cmd.String()}, nil
	})
	res, err := r.Run(context.Background(), Command{Name: "tool", Args: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "tool a", res.Command)
	assert.Equal(t, "tool", got.Name)
}
