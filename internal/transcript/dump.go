package transcript

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DumpEntry is one failing script found by DumpVerificationOutput.
type DumpEntry struct {
	Item   string
	Errors []VerificationError
}

// DumpVerificationOutput scans every ".mark" file in workdir and reports
// the ones that did not succeed, skipping marks that are stale relative to
// their ".out" file (the script has since been re-run as part of a newer
// mutation iteration and the old failure no longer applies).
func DumpVerificationOutput(wks, workdir string, w io.Writer) ([]DumpEntry, error) {
	entries, err := os.ReadDir(workdir)
	if err != nil {
		return nil, fmt.Errorf("transcript: failed to list %s: %w", workdir, err)
	}

	var marks []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mark") {
			continue
		}
		marks = append(marks, entry.Name())
	}
	sort.Strings(marks)

	var failures []DumpEntry
	for _, markName := range marks {
		markPath := filepath.Join(workdir, markName)
		data, err := os.ReadFile(markPath)
		if err != nil {
			return nil, fmt.Errorf("transcript: failed to read %s: %w", markPath, err)
		}
		if strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0]) == "success" {
			continue
		}

		item := strings.TrimSuffix(markName, ".mark")

		markInfo, err := os.Stat(markPath)
		if err != nil {
			return nil, fmt.Errorf("transcript: failed to stat %s: %w", markPath, err)
		}
		outPath := filepath.Join(workdir, item+".out")
		outInfo, err := os.Stat(outPath)
		if err != nil {
			return nil, fmt.Errorf("transcript: failed to stat %s: %w", outPath, err)
		}
		if outInfo.ModTime().After(markInfo.ModTime()) {
			// Stale: a newer iteration has already overwritten the
			// transcript this mark described.
			continue
		}

		if w != nil {
			fmt.Fprintf(w, "  Case failed: %s\n", item)
		}

		reports, err := ParseFailureReport(item, wks, workdir)
		if err != nil {
			if err == ErrVerifierException {
				continue
			}
			return nil, err
		}

		failures = append(failures, DumpEntry{Item: item, Errors: reports})
	}

	return failures, nil
}
