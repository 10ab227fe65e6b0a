// Package transcript parses the JSON-and-text transcript `saw -f json`
// leaves behind when a proof fails, turning four distinct failure shapes
// (subgoal failed, symbolic execution failed, assertion failed, prover
// returned unknown) into structured VerificationError records that serve
// as the coverage signal driving mutation scheduling.
package transcript

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	subgoalFailedPattern = regexp.MustCompile(`^\[\d\d:\d\d:\d\d\.\d\d\d\] Subgoal failed: (.+?) (.+?):$`)
	assertionMadeAtPattern = regexp.MustCompile(`^\s\sAssertion made at: (.+)$`)
	proverTracePattern     = regexp.MustCompile(`^"(.*?)" \((.*?)\)$`)
	overrideNamePattern     = regexp.MustCompile(`^- Name: (.*)$`)
	overrideLocationPattern = regexp.MustCompile(`^Location: (.*)$`)
	overrideErrorPattern    = regexp.MustCompile(`^\* (.*): error: (.*)$`)
)

func stripWorkspace(wks, location string) string {
	if strings.HasPrefix(location, wks) {
		return location[len(wks):]
	}
	return location
}

// leadingIndent returns the run of spaces/tabs at the start of s.
func leadingIndent(s string) string {
	trimmed := strings.TrimLeft(s, " \t")
	return s[:len(s)-len(trimmed)]
}

// searchSubgoalFailed implements Kind A: "Subgoal failed: <goal> <location>:"
// followed by a details line, and optionally an indented "Details:" block.
func searchSubgoalFailed(wks string, lines []string) []*Record {
	var result []*Record

	type hit struct {
		index int
		goal  string
		loc   string
	}
	var hits []hit
	for i, line := range lines {
		m := subgoalFailedPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		hits = append(hits, hit{index: i, goal: m[1], loc: stripWorkspace(wks, m[2])})
	}

	for _, h := range hits {
		rec := NewRecord()
		rec.Set("type", "subgoal failed")
		rec.Set("goal", h.goal)
		rec.Set("location", h.loc)
		// The verifier's real message text is never validated here: it is
		// carried through as the literal placeholder the upstream driver
		// itself never replaces with interpolated content.
		rec.Set("message", "message")

		i := h.index
		if i+1 < len(lines) {
			rec.Set("details", strings.TrimSpace(lines[i+1]))
		} else {
			rec.Set("details", "")
		}

		extra := []string{}
		if i+2 < len(lines) && lines[i+2] == "Details:" {
			offset := 3
			for i+offset < len(lines) {
				cursor := lines[i+offset]
				if !strings.HasPrefix(cursor, " ") {
					break
				}
				extra = append(extra, strings.TrimSpace(cursor))
				offset++
			}
		}
		rec.Set("extra", extra)

		result = append(result, rec)
	}

	return result
}

// searchSymExecAbortAssertion implements the "Abort due to assertion
// failure:" leaf shared by the top-level symbolic-execution-failed search
// and both-branch recursion: it reads the location/category line pair and
// dispatches on category to gather the right amount of extra detail.
func searchSymExecAbortAssertion(wks string, i int, lines []string, rec *Record) (int, error) {
	if i+2 >= len(lines) {
		return 0, fmt.Errorf("transcript: truncated transcript at assertion abort, line %d", i)
	}
	rec.Set("location", strings.TrimSpace(lines[i+1]))
	category := strings.TrimSpace(lines[i+2])
	rec.Set("category", category)

	extra := []string{}
	var next int

	switch {
	case category == "Global symbol not allocated":
		if i+3 >= len(lines) || strings.TrimSpace(lines[i+3]) != "Details:" {
			return 0, fmt.Errorf("transcript: expected \"Details:\" at line %d", i+3)
		}
		indent := strings.Repeat(" ", len(leadingIndent(lines[i+3]))+1)
		offset := 4
		for i+offset < len(lines) {
			cursor := lines[i+offset]
			if !strings.HasPrefix(cursor, indent) {
				break
			}
			extra = append(extra, strings.TrimSpace(cursor))
			offset++
		}
		next = i + offset

	case category == "Arithmetic comparison on incompatible values":
		if i+5 >= len(lines) {
			return 0, fmt.Errorf("transcript: truncated transcript for arithmetic comparison at line %d", i)
		}
		extra = append(extra, strings.TrimSpace(lines[i+3]), strings.TrimSpace(lines[i+4]), strings.TrimSpace(lines[i+5]))
		next = i + 6

	case category == "Error during memory load":
		next = i + 3

	case strings.HasPrefix(category, "No override specification applies for"):
		offset := 3
		found := false
		for i+offset < len(lines) {
			if strings.TrimSpace(lines[i+offset]) == "The following overrides had some preconditions that failed concretely:" {
				found = true
				break
			}
			offset++
		}
		if !found {
			return 0, fmt.Errorf("transcript: expected override preconditions banner after line %d", i)
		}

		if i+offset+2 >= len(lines) {
			return 0, fmt.Errorf("transcript: truncated override detail at line %d", i+offset)
		}
		nameLine := strings.TrimSpace(lines[i+offset+1])
		nm := overrideNamePattern.FindStringSubmatch(nameLine)
		if nm == nil {
			return 0, fmt.Errorf("transcript: malformed override name line %q", nameLine)
		}
		extra = append(extra, nm[1])

		locLine := strings.TrimSpace(lines[i+offset+2])
		lm := overrideLocationPattern.FindStringSubmatch(locLine)
		if lm == nil {
			return 0, fmt.Errorf("transcript: malformed override location line %q", locLine)
		}
		extra = append(extra, stripWorkspace(wks, lm[1]))

		offset += 3
		found = false
		for i+offset < len(lines) {
			if strings.HasPrefix(strings.TrimSpace(lines[i+offset]), "*") {
				found = true
				break
			}
			offset++
		}
		if !found {
			return 0, fmt.Errorf("transcript: expected override error line after line %d", i)
		}

		em := overrideErrorPattern.FindStringSubmatch(strings.TrimSpace(lines[i+offset]))
		if em == nil {
			return 0, fmt.Errorf("transcript: malformed override error line %q", lines[i+offset])
		}
		extra = append(extra, stripWorkspace(wks, em[1]), em[2])

		if i+offset+1 >= len(lines) {
			return 0, fmt.Errorf("transcript: truncated override error detail at line %d", i+offset)
		}
		extra = append(extra, strings.TrimSpace(lines[i+offset+1]))

		next = i + offset + 2

	default:
		return 0, fmt.Errorf("transcript: unknown category for symbolic execution assertion failure: %s", category)
	}

	rec.Set("extra", extra)
	return next, nil
}

// searchSymExecAbortBothBranch implements the recursive "Both branches
// aborted after a symbolic branch." shape: it parses the true-branch
// message, then scans forward for the false-branch message, recursing
// into either assertion or both-branch parsing for each side.
func searchSymExecAbortBothBranch(wks string, i int, lines []string, rec *Record) (int, error) {
	if i+4 >= len(lines) {
		return 0, fmt.Errorf("transcript: truncated transcript at both-branch abort, line %d", i)
	}
	rec.Set("location", strings.TrimSpace(lines[i+1])+strings.TrimSpace(lines[i+2]))
	if strings.TrimSpace(lines[i+3]) != "Message from the true branch:" {
		return 0, fmt.Errorf("transcript: expected true-branch message banner at line %d", i+3)
	}

	reasonT := strings.TrimSpace(lines[i+4])
	branchT := NewRecord()
	pos, err := dispatchSymExecReason(wks, reasonT, i+4, lines, branchT)
	if err != nil {
		return 0, err
	}
	rec.Set("branch_t", branchT)

	j := -1
	for pos < len(lines) {
		if strings.TrimSpace(lines[pos]) == "Message from the false branch:" {
			j = pos
			break
		}
		pos++
	}
	if j < 0 {
		return 0, fmt.Errorf("transcript: could not find false-branch message after line %d", i)
	}

	if j+1 >= len(lines) {
		return 0, fmt.Errorf("transcript: truncated transcript at false branch, line %d", j)
	}
	reasonF := strings.TrimSpace(lines[j+1])
	branchF := NewRecord()
	pos, err = dispatchSymExecReason(wks, reasonF, j+1, lines, branchF)
	if err != nil {
		return 0, err
	}
	rec.Set("branch_f", branchF)

	return pos, nil
}

func dispatchSymExecReason(wks, reason string, i int, lines []string, rec *Record) (int, error) {
	switch reason {
	case "Abort due to assertion failure:":
		return searchSymExecAbortAssertion(wks, i, lines, rec)
	case "Both branches aborted after a symbolic branch.":
		return searchSymExecAbortBothBranch(wks, i, lines, rec)
	default:
		return 0, fmt.Errorf("transcript: unknown reason for symbolic execution failure: %s", reason)
	}
}

// searchSymExecFailed implements Kind B: "Symbolic execution failed."
func searchSymExecFailed(wks string, lines []string) ([]*Record, error) {
	var result []*Record

	var hits []int
	for i, line := range lines {
		if line == "Symbolic execution failed." {
			hits = append(hits, i)
		}
	}

	for _, i := range hits {
		rec := NewRecord()
		rec.Set("type", "symbolic execution failed")
		if i+1 >= len(lines) {
			return nil, fmt.Errorf("transcript: truncated transcript after symbolic execution failure, line %d", i)
		}
		reason := strings.TrimSpace(lines[i+1])
		rec.Set("reason", reason)

		if _, err := dispatchSymExecReason(wks, reason, i+1, lines, rec); err != nil {
			return nil, err
		}

		result = append(result, rec)
	}

	return result, nil
}

// searchAssertionFailed implements Kind C: a two-space-indented "Assertion
// made at: <location>" line, whose surrounding message is recovered by
// scanning backward for the matching "at <location>" banner.
func searchAssertionFailed(wks string, lines []string) ([]*Record, error) {
	var result []*Record

	type hit struct {
		index    int
		location string
	}
	var hits []hit
	for i, line := range lines {
		m := assertionMadeAtPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		hits = append(hits, hit{index: i, location: m[1]})
	}

	for _, h := range hits {
		rec := NewRecord()
		rec.Set("type", "assertion failed")

		found := false
		for offset := 1; h.index-offset >= 0; offset++ {
			cursor := lines[h.index-offset]
			if cursor == "at "+h.location {
				if h.index-offset+1 >= len(lines) {
					return nil, fmt.Errorf("transcript: truncated transcript after assertion banner, line %d", h.index-offset)
				}
				rec.Set("message", lines[h.index-offset+1])
				rec.Set("location", stripWorkspace(wks, h.location))
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("transcript: could not find assertion banner for location %q", h.location)
		}

		result = append(result, rec)
	}

	return result, nil
}

// searchProverUnknown implements Kind D: "Prover returned Unknown",
// recovering the call stack above it by scanning backward until the
// "Stack trace:" banner.
func searchProverUnknown(wks string, lines []string) ([]*Record, error) {
	var result []*Record

	var hits []int
	for i, line := range lines {
		if line == "Prover returned Unknown" {
			hits = append(hits, i)
		}
	}

	for _, i := range hits {
		rec := NewRecord()
		rec.Set("type", "prover unknown")

		var trace []string
		found := false
		for offset := 1; i-offset >= 0; offset++ {
			cursor := strings.TrimSpace(lines[i-offset])
			if strings.HasSuffix(cursor, "Stack trace:") {
				found = true
				break
			}
			m := proverTracePattern.FindStringSubmatch(cursor)
			if m == nil {
				return nil, fmt.Errorf("transcript: malformed stack trace line %q", cursor)
			}
			function := m[1]
			location := stripWorkspace(wks, m[2])
			trace = append(trace, fmt.Sprintf("%s @ %s", function, location))
		}
		if !found {
			return nil, fmt.Errorf("transcript: could not find stack trace banner above line %d", i)
		}

		rec.Set("trace", trace)
		result = append(result, rec)
	}

	return result, nil
}
