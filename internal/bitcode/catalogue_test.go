package bitcode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestCollectVerifiedFunctionsTopLevelAndSpecTree(t *testing.T) {
	base := t.TempDir()

	writeFile(t, filepath.Join(base, "verify_foo.saw"), `
foo_spec <- crucible_llvm_verify m "s2n_foo" [] true foo_spec z3;
`)
	writeFile(t, filepath.Join(base, "verify_imperative_cryptol_spec.saw"), `
bar_spec <- crucible_llvm_verify m "s2n_denylisted" [] true bar_spec z3;
`)
	writeFile(t, filepath.Join(base, "spec", "nested", "inner.saw"), `
baz_spec <- crucible_llvm_verify m "s2n_bar" [] true baz_spec z3;
`)

	targets, err := CollectVerifiedFunctions(base, []string{"verify_imperative_cryptol_spec.saw"})
	require.NoError(t, err)
	require.Equal(t, []string{"s2n_bar", "s2n_foo"}, targets)
}

func TestCollectVerifiedFunctionsDedupesAndSorts(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "a.saw"), `
x <- crucible_llvm_verify m "s2n_z" [] true x z3;
y <- crucible_llvm_verify m "s2n_a" [] true y z3;
`)
	writeFile(t, filepath.Join(base, "b.saw"), `
z <- crucible_llvm_verify m "s2n_a" [] true z z3;
`)

	targets, err := CollectVerifiedFunctions(base, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"s2n_a", "s2n_z"}, targets)
}

func TestWriteAndLoadMutationPoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mutation-points.json")
	writeFile(t, path, `[
		{"rule": "r1", "function": "f1", "instruction": 2},
		{"rule": "r2", "function": "f2", "instruction": 5}
	]`)

	points, err := LoadMutationPoints(path)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "r1", points[0].Rule)
	require.True(t, points[0].Less(points[1]))
}

func TestMutationPointsExist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mutation-points.json")
	require.False(t, MutationPointsExist(path))
	writeFile(t, path, "[]")
	require.True(t, MutationPointsExist(path))
}

func TestWriteEntryTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fuzz", "entry-targets.json")
	require.NoError(t, WriteEntryTargets(path, []string{"s2n_a", "s2n_b"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "s2n_a")
}
