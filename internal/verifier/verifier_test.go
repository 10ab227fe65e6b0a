package verifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeSaw(t *testing.T, binDir, script string) {
	t.Helper()
	path := filepath.Join(binDir, "saw")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
}

func TestVerifyWritesOutErrAndMarkFiles(t *testing.T) {
	binDir := t.TempDir()
	workDir := t.TempDir()
	outDir := t.TempDir()

	fakeSaw(t, binDir, `echo stdout-content; echo stderr-content 1>&2`)

	require.NoError(t, os.WriteFile(filepath.Join(workDir, "x.saw"), []byte(""), 0644))

	driver := NewDriver(workDir, []string{binDir})
	err := driver.Verify(context.Background(), "x.saw", outDir)
	require.NoError(t, err)

	out, errPath, logPath, markPath := outputPaths(outDir, "x.saw")
	outData, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(outData), "stdout-content")

	errData, err := os.ReadFile(errPath)
	require.NoError(t, err)
	require.Contains(t, string(errData), "stderr-content")

	markData, err := os.ReadFile(markPath)
	require.NoError(t, err)
	require.Equal(t, "success", string(markData))

	_ = logPath // saw itself writes -s logPath; the fake doesn't, which is fine for this test
}

func TestVerifyWritesFailureMark(t *testing.T) {
	binDir := t.TempDir()
	workDir := t.TempDir()
	outDir := t.TempDir()

	fakeSaw(t, binDir, `exit 1`)

	driver := NewDriver(workDir, []string{binDir})
	err := driver.Verify(context.Background(), "y.saw", outDir)
	require.Error(t, err)

	_, _, _, markPath := outputPaths(outDir, "y.saw")
	markData, err := os.ReadFile(markPath)
	require.NoError(t, err)
	require.Contains(t, string(markData), "exit code 1")
}

func TestCollectTopLevelScriptsAppliesDenylistAndSorts(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"verify_b.saw", "verify_a.saw", "verify_imperative_cryptol_spec.saw"} {
		require.NoError(t, os.WriteFile(filepath.Join(base, name), []byte(""), 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(base, "spec"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "spec", "lib.saw"), []byte(""), 0644))

	scripts, err := CollectTopLevelScripts(base, []string{"verify_imperative_cryptol_spec.saw"})
	require.NoError(t, err)
	require.Equal(t, []string{"verify_a.saw", "verify_b.saw"}, scripts)
}

func TestVerifyAllRunsEveryScriptDespiteFailure(t *testing.T) {
	binDir := t.TempDir()
	workDir := t.TempDir()
	outDir := t.TempDir()

	fakeSaw(t, binDir, `
case "$*" in
  *fail.saw*) exit 1 ;;
  *) exit 0 ;;
esac
`)

	for _, name := range []string{"fail.saw", "ok.saw"} {
		require.NoError(t, os.WriteFile(filepath.Join(workDir, name), []byte(""), 0644))
	}

	driver := NewDriver(workDir, []string{binDir})
	err := VerifyAll(context.Background(), driver, workDir, outDir, nil)
	require.Error(t, err)

	_, _, _, markOK := outputPaths(outDir, "ok.saw")
	data, err := os.ReadFile(markOK)
	require.NoError(t, err)
	require.Equal(t, "success", string(data))
}
