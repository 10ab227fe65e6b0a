package procrunner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunSuccess(t *testing.T) {
	var stdout bytes.Buffer
	err := Run(context.Background(), []string{"echo", "hello"}, Options{Stdout: &stdout})
	require.NoError(t, err)
	require.Contains(t, stdout.String(), "hello")
}

func TestRunExitError(t *testing.T) {
	err := Run(context.Background(), []string{"sh", "-c", "exit 3"}, Options{})
	require.Error(t, err)

	var subErr *SubprocessError
	require.ErrorAs(t, err, &subErr)
	require.Equal(t, KindExit, subErr.Kind)
	require.Equal(t, 3, subErr.ExitCode)
}

func TestRunTimeout(t *testing.T) {
	err := Run(context.Background(), []string{"sleep", "5"}, Options{Timeout: 50 * time.Millisecond})
	require.Error(t, err)

	var subErr *SubprocessError
	require.ErrorAs(t, err, &subErr)
	require.Equal(t, KindTimeout, subErr.Kind)
}

func TestRunScopedDir(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer
	err := Run(context.Background(), []string{"pwd"}, Options{Dir: dir, Stdout: &stdout})
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Contains(t, stdout.String(), resolved)
}

func TestRunScopedPathPrepend(t *testing.T) {
	binDir := t.TempDir()
	scriptPath := filepath.Join(binDir, "mytool")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\necho found-it\n"), 0755))

	var stdout bytes.Buffer
	err := Run(context.Background(), []string{"mytool"}, Options{
		PathPrepend: []string{binDir},
		Stdout:      &stdout,
	})
	require.NoError(t, err)
	require.Contains(t, stdout.String(), "found-it")
}

func TestRunDoesNotMutateProcessEnv(t *testing.T) {
	before := os.Getenv("PATH")
	err := Run(context.Background(), []string{"true"}, Options{PathPrepend: []string{"/nonexistent/bin"}})
	require.NoError(t, err)
	require.Equal(t, before, os.Getenv("PATH"))
}

func TestRunToFilesWritesOutput(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "cmd.out")
	errPath := filepath.Join(dir, "cmd.err")

	err := RunToFiles(context.Background(), []string{"sh", "-c", "echo out; echo err 1>&2"}, dir, outPath, errPath, 0, nil)
	require.NoError(t, err)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Contains(t, string(out), "out")

	errContent, err := os.ReadFile(errPath)
	require.NoError(t, err)
	require.Contains(t, string(errContent), "err")
}

func TestPrependPathVarNoExistingVar(t *testing.T) {
	env := []string{"FOO=bar"}
	got := prependPathVar(env, "PATH", []string{"/a", "/b"})
	require.Contains(t, got, "PATH=/a"+string(os.PathListSeparator)+"/b")
}
