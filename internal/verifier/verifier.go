// Package verifier drives `saw`, the formal verifier, against one script
// or the full top-level script set, capturing its stdout/stderr/debug log
// and recording a terse pass/fail marker file alongside them.
package verifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sawmutest/sawmutest/internal/procrunner"
)

// Driver wraps `saw` invocations.
type Driver struct {
	// SawBin is the `saw` executable, normally resolved from deps.saw_bin.
	SawBin string
	// WorkDir is the directory the verifier runs from: script paths are
	// relative to it.
	WorkDir string
	// PathPrepend is prepended to PATH for the duration of the call.
	PathPrepend []string
	// Timeout bounds a single script's verification run; zero means no
	// limit.
	Timeout time.Duration
}

// NewDriver builds a Driver with "saw" as the default binary name.
func NewDriver(workDir string, pathPrepend []string) *Driver {
	return &Driver{SawBin: "saw", WorkDir: workDir, PathPrepend: pathPrepend}
}

// successMark is written to a script's .mark file when the verifier process
// exits zero within its timeout. internal/transcript treats it as the pass
// signal: scripts marked success are skipped without parsing their
// transcripts.
const successMark = "success"

// outputPaths returns the four file paths one script's run produces, all
// named "<script>.<ext>" under outDir.
func outputPaths(outDir, script string) (out, errPath, logPath, mark string) {
	base := filepath.Join(outDir, script)
	return base + ".out", base + ".err", base + ".log", base + ".mark"
}

// Verify runs `saw -v debug -s <log> -f json <script>` for one script,
// writing its stdout to "<script>.out", stderr to "<script>.err", and the
// debug trace (which the JSON transcript is embedded in) to "<script>.log"
// under outDir. The final line gives the mark file's content.
func (d *Driver) Verify(ctx context.Context, script, outDir string) error {
	outPath, errPath, logPath, markPath := outputPaths(outDir, script)
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("verifier: failed to create %s: %w", filepath.Dir(logPath), err)
	}

	argv := []string{d.SawBin, "-v", "debug", "-s", logPath, "-f", "json", script}
	runErr := procrunner.RunToFiles(ctx, argv, d.WorkDir, outPath, errPath, d.Timeout, d.PathPrepend)

	mark := successMark
	if runErr != nil {
		mark = runErr.Error()
	}
	if writeErr := os.WriteFile(markPath, []byte(mark), 0644); writeErr != nil {
		return fmt.Errorf("verifier: failed to write mark %s: %w", markPath, writeErr)
	}

	return runErr
}

// CollectTopLevelScripts lists every "*.saw" file directly under baseDir
// (no recursive descent into spec/, those are library scripts the
// top-level scripts include, not independently runnable verification
// targets), sorted and deduplicated, minus anything in denylist.
func CollectTopLevelScripts(baseDir string, denylist []string) ([]string, error) {
	ignored := make(map[string]struct{}, len(denylist))
	for _, name := range denylist {
		ignored[name] = struct{}{}
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("verifier: failed to list %s: %w", baseDir, err)
	}

	seen := make(map[string]struct{})
	scripts := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".saw") {
			continue
		}
		if _, skip := ignored[name]; skip {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		scripts = append(scripts, name)
	}
	sort.Strings(scripts)
	return scripts, nil
}

// VerifyAll runs every top-level script sequentially, collecting the first
// error encountered (if any) while still attempting every script so a
// single failing proof doesn't hide the outcome of the rest. Sequential
// execution (rather than one-script-per-goroutine) matches the worker
// model: concurrency here comes from running many entire fuzz workers in
// parallel, each doing its own sequential verify_all pass, not from
// parallelizing within one.
func VerifyAll(ctx context.Context, driver *Driver, baseDir, outDir string, denylist []string) error {
	scripts, err := CollectTopLevelScripts(baseDir, denylist)
	if err != nil {
		return err
	}

	var firstErr error
	for _, script := range scripts {
		if err := driver.Verify(ctx, script, outDir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
