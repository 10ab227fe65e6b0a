package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeOut(t *testing.T, dir, item, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, item+".out"), []byte(content), 0644))
}

func writeErr(t *testing.T, dir, item, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, item+".err"), []byte(content), 0644))
}

func writeMark(t *testing.T, dir, item, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, item+".mark"), []byte(content), 0644))
}

func TestParseFailureReportSubgoalFailed(t *testing.T) {
	dir := t.TempDir()
	writeOut(t, dir, "x.saw", "[00:00:00.000] Subgoal failed: g /wks/a.saw:1:1:\nmsg\nDetails:\n  d1\n")
	writeErr(t, dir, "x.saw", "")

	errs, err := ParseFailureReport("x.saw", wks, dir)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.Equal(t, "x.saw", errs[0].Item)
}

func TestParseFailureReportNoDetailsWithNonEmptyErrReturnsVerifierException(t *testing.T) {
	dir := t.TempDir()
	writeOut(t, dir, "y.saw", "nothing interesting here\n")
	writeErr(t, dir, "y.saw", "Traceback: something blew up\n")

	_, err := ParseFailureReport("y.saw", wks, dir)
	require.ErrorIs(t, err, ErrVerifierException)
}

func TestParseFailureReportNoDetailsWithEmptyErrIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeOut(t, dir, "z.saw", "nothing interesting here\n")
	writeErr(t, dir, "z.saw", "")

	_, err := ParseFailureReport("z.saw", wks, dir)
	require.Error(t, err)
	require.False(t, err == ErrVerifierException)
}

func TestCollectErrorsSkipsSuccessAndDedupes(t *testing.T) {
	dir := t.TempDir()

	writeMark(t, dir, "ok.saw", "success")

	writeMark(t, dir, "fail.saw", "exit code 1")
	writeOut(t, dir, "fail.saw", "[00:00:00.000] Subgoal failed: g /wks/a.saw:1:1:\nmsg\n")
	writeErr(t, dir, "fail.saw", "")

	writeMark(t, dir, "fail2.saw", "exit code 1")
	writeOut(t, dir, "fail2.saw", "[00:00:00.000] Subgoal failed: g /wks/a.saw:1:1:\nmsg\n")
	writeErr(t, dir, "fail2.saw", "")

	errs, hasException, err := CollectErrors(wks, dir, []string{"ok.saw", "fail.saw", "fail2.saw"})
	require.NoError(t, err)
	require.False(t, hasException)
	require.Len(t, errs, 2, "the same failure in fail.saw and fail2.saw stays distinct because the item is part of identity")
}

func TestCollectErrorsReportsExceptionWithoutFailing(t *testing.T) {
	dir := t.TempDir()

	writeMark(t, dir, "crashed.saw", "exit code 139")
	writeOut(t, dir, "crashed.saw", "nothing parseable\n")
	writeErr(t, dir, "crashed.saw", "segfault\n")

	errs, hasException, err := CollectErrors(wks, dir, []string{"crashed.saw"})
	require.NoError(t, err)
	require.True(t, hasException)
	require.Nil(t, errs)
}

func TestVerificationErrorEqualIgnoresInstanceIdentity(t *testing.T) {
	a := VerificationError{Item: "x", Details: NewRecord().Set("type", "t").Set("goal", "g")}
	b := VerificationError{Item: "x", Details: NewRecord().Set("type", "t").Set("goal", "g")}
	c := VerificationError{Item: "x", Details: NewRecord().Set("type", "t").Set("goal", "other")}

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestVerificationErrorLessGivesTotalOrder(t *testing.T) {
	a := VerificationError{Item: "a.saw", Details: NewRecord().Set("type", "t")}
	b := VerificationError{Item: "b.saw", Details: NewRecord().Set("type", "t")}

	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
}
