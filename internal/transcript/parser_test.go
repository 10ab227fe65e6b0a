package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const wks = "/wks/"

func recField(t *testing.T, r *Record, key string) interface{} {
	t.Helper()
	v, ok := r.Get(key)
	require.True(t, ok, "missing key %q", key)
	return v
}

func TestSearchSubgoalFailedWithDetailsBlock(t *testing.T) {
	lines := strings.Split(strings.TrimLeft(`
[12:34:56.789] Subgoal failed: s2n_hmac_digest_size /wks/path/file.saw:10:5:
some failure message
Details:
  detail one
  detail two
not indented
`, "\n"), "\n")

	recs := searchSubgoalFailed(wks, lines)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.Equal(t, "subgoal failed", recField(t, rec, "type"))
	require.Equal(t, "s2n_hmac_digest_size", recField(t, rec, "goal"))
	require.Equal(t, "path/file.saw:10:5", recField(t, rec, "location"))
	require.Equal(t, "message", recField(t, rec, "message"))
	require.Equal(t, "some failure message", recField(t, rec, "details"))
	require.Equal(t, []string{"detail one", "detail two"}, recField(t, rec, "extra"))
}

func TestSearchSubgoalFailedWithoutDetailsBlock(t *testing.T) {
	lines := strings.Split(strings.TrimLeft(`
[00:00:00.000] Subgoal failed: some_goal /wks/a.saw:1:1:
a short message
not a details block
`, "\n"), "\n")

	recs := searchSubgoalFailed(wks, lines)
	require.Len(t, recs, 1)
	require.Equal(t, []string{}, recField(t, recs[0], "extra"))
}

func TestSearchSymExecFailedAssertionGlobalSymbolNotAllocated(t *testing.T) {
	lines := strings.Split(strings.TrimLeft(`
Symbolic execution failed.
Abort due to assertion failure:
/wks/foo.saw:3:1
Global symbol not allocated
Details:
  some detail
  another detail
stop here
`, "\n"), "\n")

	recs, err := searchSymExecFailed(wks, lines)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.Equal(t, "symbolic execution failed", recField(t, rec, "type"))
	require.Equal(t, "Abort due to assertion failure:", recField(t, rec, "reason"))
	require.Equal(t, "/wks/foo.saw:3:1", recField(t, rec, "location"))
	require.Equal(t, "Global symbol not allocated", recField(t, rec, "category"))
	require.Equal(t, []string{"some detail", "another detail"}, recField(t, rec, "extra"))
}

func TestSearchSymExecFailedAssertionArithmeticComparison(t *testing.T) {
	lines := strings.Split(strings.TrimLeft(`
Symbolic execution failed.
Abort due to assertion failure:
/wks/bar.saw:7:2
Arithmetic comparison on incompatible values
line a
line b
line c
`, "\n"), "\n")

	recs, err := searchSymExecFailed(wks, lines)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, []string{"line a", "line b", "line c"}, recField(t, recs[0], "extra"))
}

func TestSearchSymExecFailedAssertionMemoryLoad(t *testing.T) {
	lines := strings.Split(strings.TrimLeft(`
Symbolic execution failed.
Abort due to assertion failure:
/wks/baz.saw:1:1
Error during memory load
`, "\n"), "\n")

	recs, err := searchSymExecFailed(wks, lines)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, []string{}, recField(t, recs[0], "extra"))
}

func TestSearchSymExecFailedAssertionNoOverride(t *testing.T) {
	lines := strings.Split(strings.TrimLeft(`
Symbolic execution failed.
Abort due to assertion failure:
/wks/q.saw:2:2
No override specification applies for s2n_foo
The following overrides had some preconditions that failed concretely:
- Name: s2n_foo_override
Location: /wks/override.saw:9:9
* /wks/caller.saw:4:4: error: some mismatch
more detail here
`, "\n"), "\n")

	recs, err := searchSymExecFailed(wks, lines)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	extra := recField(t, recs[0], "extra").([]string)
	require.Equal(t, []string{
		"s2n_foo_override",
		"override.saw:9:9",
		"caller.saw:4:4",
		"some mismatch",
		"more detail here",
	}, extra)
}

func TestSearchSymExecFailedBothBranchRecursion(t *testing.T) {
	lines := strings.Split(strings.TrimLeft(`
Symbolic execution failed.
Both branches aborted after a symbolic branch.
/wks/left-part
/wks/right-part
Message from the true branch:
Abort due to assertion failure:
/wks/t.saw:1:1
Error during memory load
Message from the false branch:
Abort due to assertion failure:
/wks/f.saw:2:2
Error during memory load
`, "\n"), "\n")

	recs, err := searchSymExecFailed(wks, lines)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.Equal(t, "/wks/left-part/wks/right-part", recField(t, rec, "location"))

	branchT := recField(t, rec, "branch_t").(*Record)
	require.Equal(t, "/wks/t.saw:1:1", recField(t, branchT, "location"))
	require.Equal(t, "Error during memory load", recField(t, branchT, "category"))

	branchF := recField(t, rec, "branch_f").(*Record)
	require.Equal(t, "/wks/f.saw:2:2", recField(t, branchF, "location"))
}

func TestSearchSymExecFailedUnknownReasonErrors(t *testing.T) {
	lines := strings.Split(strings.TrimLeft(`
Symbolic execution failed.
Something else entirely
`, "\n"), "\n")

	_, err := searchSymExecFailed(wks, lines)
	require.Error(t, err)
}

func TestSearchAssertionFailed(t *testing.T) {
	lines := strings.Split(strings.TrimLeft(`
at /wks/sub/file.saw:5:2
a failure happened here
  Assertion made at: /wks/sub/file.saw:5:2
`, "\n"), "\n")

	recs, err := searchAssertionFailed(wks, lines)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "assertion failed", recField(t, recs[0], "type"))
	require.Equal(t, "a failure happened here", recField(t, recs[0], "message"))
	require.Equal(t, "sub/file.saw:5:2", recField(t, recs[0], "location"))
}

func TestSearchProverUnknown(t *testing.T) {
	lines := strings.Split(strings.TrimLeft(`
Stack trace:
"funcA" (/wks/a.saw:1:1)
"funcB" (/wks/b.saw:2:2)
Prover returned Unknown
`, "\n"), "\n")

	recs, err := searchProverUnknown(wks, lines)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "prover unknown", recField(t, recs[0], "type"))
	require.Equal(t, []string{"funcB @ b.saw:2:2", "funcA @ a.saw:1:1"}, recField(t, recs[0], "trace"))
}

func TestRecordMarshalJSONPreservesOrder(t *testing.T) {
	rec := NewRecord()
	rec.Set("type", "subgoal failed")
	rec.Set("goal", "g")
	rec.Set("location", "l")

	data, err := rec.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"type":"subgoal failed","goal":"g","location":"l"}`, string(data))
}
