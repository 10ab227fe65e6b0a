package bitcode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// collectSAWScripts lists every top-level "*.saw" file under baseDir not
// named in denylist, plus every "*.saw" file anywhere under baseDir/spec,
// mirroring the reference driver's two-pass scan: a flat listing of the
// top level (where scripts are skippable) and a recursive walk of spec/
// (where none are).
func collectSAWScripts(baseDir string, denylist []string) ([]string, error) {
	ignored := make(map[string]struct{}, len(denylist))
	for _, name := range denylist {
		ignored[name] = struct{}{}
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("bitcode: failed to list %s: %w", baseDir, err)
	}

	top := make([]string, 0)
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
		top = append(top, name)
	}
	sort.Strings(top)

	scripts := make([]string, len(top))
	for i, name := range top {
		scripts[i] = filepath.Join(baseDir, name)
	}

	specDir := filepath.Join(baseDir, "spec")
	if _, err := os.Stat(specDir); err == nil {
		err = filepath.Walk(specDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if strings.HasSuffix(path, ".saw") {
				scripts = append(scripts, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("bitcode: failed to walk %s: %w", specDir, err)
		}
	}

	return scripts, nil
}

// CollectVerifiedFunctions scans every collected SAW script for
// `crucible_llvm_verify` invocations and extracts the quoted function name
// two tokens after the call, returning the sorted set of distinct names.
// These are the entry points the mutation pass uses to build its call
// graph and decide which functions are reachable from something verified.
func CollectVerifiedFunctions(baseDir string, denylist []string) ([]string, error) {
	scripts, err := collectSAWScripts(baseDir, denylist)
	if err != nil {
		return nil, err
	}

	verified := make(map[string]struct{})
	for _, script := range scripts {
		data, err := os.ReadFile(script)
		if err != nil {
			return nil, fmt.Errorf("bitcode: failed to read %s: %w", script, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			tokens := strings.Fields(line)
			for i, tok := range tokens {
				if tok != "crucible_llvm_verify" {
					continue
				}
				if i+2 >= len(tokens) {
					continue
				}
				target := tokens[i+2]
				if !strings.HasPrefix(target, `"`) || !strings.HasSuffix(target, `"`) || len(target) < 2 {
					continue
				}
				verified[target[1:len(target)-1]] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(verified))
	for name := range verified {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// WriteEntryTargets writes the sorted, deduplicated entry-target function
// list to path (work/fuzz/entry-targets.json).
func WriteEntryTargets(path string, targets []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("bitcode: failed to create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(targets, "", "    ")
	if err != nil {
		return fmt.Errorf("bitcode: failed to marshal entry targets: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("bitcode: failed to write %s: %w", path, err)
	}
	return nil
}

// LoadMutationPoints reads the mutation-point catalogue written by the
// external pass's "init" action.
func LoadMutationPoints(path string) ([]MutationPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bitcode: failed to read %s: %w", path, err)
	}
	var points []MutationPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("bitcode: failed to parse %s: %w", path, err)
	}
	return points, nil
}

// MutationPointsExist reports whether the catalogue file at path has
// already been produced, making mutation-point collection idempotent:
// callers skip re-running the (expensive) init pass when it has.
func MutationPointsExist(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
