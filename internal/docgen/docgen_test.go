package docgen

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgate/internal/config"
	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/process"
)

func fakeGenerator(exitCode int, output ...string) (process.Runner, *[]process.Command) {
	var seen []process.Command
	return process.RunnerFunc(func(_ context.Context, cmd process.Command) (*process.Result, error) {
		seen = append(seen, cmd)
		res := &process.Result{Command: cmd.String(), ExitCode: exitCode, Output: output}
		if exitCode != 0 {
			return res, process.ErrNonZeroExit
		}
		return res, nil
	}), &seen
}

func TestCommand_StrictHTML(t *testing.T) {
	cfg := config.Default().Generator
	cmd := Command(cfg, "/work/src", "html")

	assert.Equal(t, "sphinx-build", cmd.Name)
	assert.Equal(t, []string{"-W", "--keep-going", "-b", "html", "docs", filepath.Join("docs", "_build", "html")}, cmd.Args)
	assert.Equal(t, "/work/src", cmd.Dir)
}

func TestCommand_NonStrict(t *testing.T) {
	cfg := config.Default().Generator
	off := false
	cfg.Strict = &off
	cfg.ExtraArgs = []string{"-j", "auto"}

	cmd := Command(cfg, ".", "linkcheck")
	assert.Equal(t, []string{"-b", "linkcheck", "-j", "auto", "docs", filepath.Join("docs", "_build", "linkcheck")}, cmd.Args)
}

func TestVerify_CleanBuildSucceeds(t *testing.T) {
	runner, seen := fakeGenerator(0, "Running Sphinx v7.2.6", "build succeeded.")
	var console bytes.Buffer

	report, err := NewVerifier(config.Default().Generator, runner, &console).Verify(context.Background(), "/work/src")
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Len(t, *seen, 1)
	assert.Equal(t, filepath.Join("/work/src", "docs", "_build", "html"), report.OutputDir)
	assert.Equal(t, SuccessMessage+"\n", console.String())
}

func TestVerify_WarningFailsBuild(t *testing.T) {
	// a warning fails even when the generator itself exits zero
	runner, _ := fakeGenerator(0,
		"/work/src/docs/index.rst:14: WARNING: undefined label: 'missing'",
		"build succeeded, 1 warning.")
	var console bytes.Buffer

	report, err := NewVerifier(config.Default().Generator, runner, &console).Verify(context.Background(), "/work/src")
	require.Error(t, err)
	assert.Equal(t, 1, report.Warnings())
	assert.Contains(t, console.String(), FailureMessage)

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.CategoryBuild, ce.Category())
	assert.True(t, ce.IsFatal())
}

func TestVerify_NonZeroExitWithoutDiagnostics(t *testing.T) {
	runner, _ := fakeGenerator(2, "Traceback (most recent call last):")

	report, err := NewVerifier(config.Default().Generator, runner, nil).Verify(context.Background(), ".")
	require.Error(t, err)
	assert.Equal(t, 2, report.ExitCode)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, "documentation generator exited with code 2", ce.Message())
}

func TestVerify_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := process.RunnerFunc(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return &process.Result{ExitCode: -1}, ctx.Err()
	})

	_, err := NewVerifier(config.Default().Generator, runner, nil).Verify(ctx, ".")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseDiagnostics(t *testing.T) {
	lines := []string{
		"Running Sphinx v7.2.6",
		"/src/docs/api.rst:3: WARNING: duplicate object description of miv.core, other instance in api/core, use :no-index: for one of them",
		"/src/miv/core.py:docstring of miv.core.Pipeline.run:12: ERROR: Unexpected indentation.",
		"WARNING: html_static_path entry '_static' does not exist",
		"/src/docs/guide.rst: CRITICAL: Title level inconsistent:",
		"\x1b[91m/src/docs/x.rst:7: WARNING: colored\x1b[39;49;00m",
		"build finished with problems, 4 warnings.",
		"checking consistency... done",
	}
	diags := ParseDiagnostics(lines)
	require.Len(t, diags, 5)

	assert.Equal(t, Diagnostic{File: "/src/docs/api.rst", Line: 3, Level: LevelWarning,
		Message: "duplicate object description of miv.core, other instance in api/core, use :no-index: for one of them"}, diags[0])
	assert.Equal(t, "/src/miv/core.py:docstring of miv.core.Pipeline.run", diags[1].File)
	assert.Equal(t, 12, diags[1].Line)
	assert.Equal(t, LevelError, diags[1].Level)
	assert.Equal(t, Diagnostic{Level: LevelWarning, Message: "html_static_path entry '_static' does not exist"}, diags[2])
	assert.Equal(t, LevelCritical, diags[3].Level)
	assert.Equal(t, "/src/docs/guide.rst", diags[3].File)
	assert.Equal(t, "colored", diags[4].Message)

	w, e := Count(diags)
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, e)
	assert.Equal(t, "/src/docs/api.rst:3: WARNING: duplicate object description of miv.core, other instance in api/core, use :no-index: for one of them", diags[0].String())
}
