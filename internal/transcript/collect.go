package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrVerifierException signals that a script's verifier invocation itself
// crashed or produced no parseable transcript (an error went to the .err
// file with nothing matched in .out). It is not the same as a genuinely
// malformed transcript; callers should skip the iteration rather than
// treat this as fatal.
var ErrVerifierException = errors.New("transcript: verifier raised an exception, see .err file")

// VerificationError pairs the script it came from with the structured
// detail record one of the four kind parsers produced.
type VerificationError struct {
	Item    string
	Details *Record
}

// CanonicalJSON renders the error as deterministic JSON (Item first, then
// Details in its own insertion order), giving VerificationError both a
// stable equality check and a total order via string comparison.
func (e VerificationError) CanonicalJSON() (string, error) {
	data, err := marshalOrdered(e.Item, e.Details)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func marshalOrdered(item string, details *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"item":`)
	itemJSON, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	buf.Write(itemJSON)
	buf.WriteString(`,"details":`)
	detailsJSON, err := details.MarshalJSON()
	if err != nil {
		return nil, err
	}
	buf.Write(detailsJSON)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Equal reports whether two VerificationErrors carry the same item and
// structurally identical details.
func (e VerificationError) Equal(other VerificationError) bool {
	a, errA := e.CanonicalJSON()
	b, errB := other.CanonicalJSON()
	if errA != nil || errB != nil {
		return false
	}
	return a == b
}

// Less defines the total order over VerificationErrors used wherever a
// deterministic ordering is required (report output, test fixtures).
func (e VerificationError) Less(other VerificationError) bool {
	a, errA := e.CanonicalJSON()
	b, errB := other.CanonicalJSON()
	if errA != nil || errB != nil {
		return false
	}
	return a < b
}

// ParseFailureReport reads "<workdir>/<item>.out" and runs all four kind
// parsers over it. If none match, it falls back to "<workdir>/<item>.err":
// a non-empty .err file means the verifier itself raised an exception
// (ErrVerifierException, not fatal); an empty one means the transcript
// shape is genuinely unrecognized, which is fatal.
func ParseFailureReport(item, wks, workdir string) ([]VerificationError, error) {
	outPath := filepath.Join(workdir, item+".out")
	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("transcript: failed to read %s: %w", outPath, err)
	}

	lines := splitRstripped(string(data))

	var details []*Record
	details = append(details, searchSubgoalFailed(wks, lines)...)

	symExec, err := searchSymExecFailed(wks, lines)
	if err != nil {
		return nil, err
	}
	details = append(details, symExec...)

	assertionFailed, err := searchAssertionFailed(wks, lines)
	if err != nil {
		return nil, err
	}
	details = append(details, assertionFailed...)

	proverUnknown, err := searchProverUnknown(wks, lines)
	if err != nil {
		return nil, err
	}
	details = append(details, proverUnknown...)

	if len(details) == 0 {
		errPath := filepath.Join(workdir, item+".err")
		info, statErr := os.Stat(errPath)
		if statErr != nil {
			return nil, fmt.Errorf("transcript: failed to stat %s: %w", errPath, statErr)
		}
		if info.Size() == 0 {
			return nil, fmt.Errorf("transcript: no errors found in %s", outPath)
		}
		return nil, ErrVerifierException
	}

	out := make([]VerificationError, len(details))
	for i, d := range details {
		out[i] = VerificationError{Item: item, Details: d}
	}
	return out, nil
}

func splitRstripped(content string) []string {
	raw := strings.Split(content, "\n")
	lines := make([]string, len(raw))
	for i, line := range raw {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return lines
}

// CollectErrors reads every script's ".mark" file to learn success/failure,
// parses a structured report for each failure, and returns the
// deduplicated union of VerificationErrors together with whether any
// script's verifier raised an exception along the way (hasException).
// When hasException is true the result should be treated as inconclusive
// for this iteration, matching the reference driver's own
// "has_exception implies skip this round" policy.
func CollectErrors(wks, workdir string, scripts []string) ([]VerificationError, bool, error) {
	var errs []VerificationError
	hasException := false

	for _, script := range scripts {
		markPath := filepath.Join(workdir, script+".mark")
		markData, err := os.ReadFile(markPath)
		if err != nil {
			return nil, false, fmt.Errorf("transcript: failed to read mark %s: %w", markPath, err)
		}
		if string(markData) == "success" {
			continue
		}

		reports, err := ParseFailureReport(script, wks, workdir)
		if err != nil {
			if errors.Is(err, ErrVerifierException) {
				hasException = true
				continue
			}
			return nil, false, err
		}

		for _, r := range reports {
			if !containsError(errs, r) {
				errs = append(errs, r)
			}
		}
	}

	if hasException {
		return nil, true, nil
	}
	return errs, false, nil
}

func containsError(errs []VerificationError, candidate VerificationError) bool {
	for _, e := range errs {
		if e.Equal(candidate) {
			return true
		}
	}
	return false
}
