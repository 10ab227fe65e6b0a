package bitcode

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTraceSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.json")

	original := Trace{
		{Rule: "flip-add-sub", Function: "s2n_foo", Instruction: 1, Package: []byte(`{"origin":"add","repl":"sub"}`)},
	}
	require.NoError(t, original.Save(path))

	loaded, err := LoadTrace(path)
	require.NoError(t, err)
	require.Equal(t, original, loaded)
}

func TestTraceAppendDoesNotMutateReceiver(t *testing.T) {
	base := Trace{
		{Rule: "r1", Function: "f1", Instruction: 1, Package: []byte(`{}`)},
	}
	extended := base.Append(MutationStep{Rule: "r2", Function: "f2", Instruction: 2, Package: []byte(`{}`)})

	require.Len(t, base, 1)
	require.Len(t, extended, 2)
}
