package app

import "path/filepath"

// layout resolves every on-disk path under a config's work_dir to the
// fixed tree shape one fuzz campaign's state lives in.
type layout struct {
	workDir string
}

func newLayout(workDir string) layout {
	return layout{workDir: workDir}
}

func (l layout) bitcodeDir() string  { return filepath.Join(l.workDir, "bitcode") }
func (l layout) baseBitcode() string { return filepath.Join(l.bitcodeDir(), "all_llvm.bc") }

func (l layout) fuzzDir() string         { return filepath.Join(l.workDir, "fuzz") }
func (l layout) entryTargets() string    { return filepath.Join(l.fuzzDir(), "entry-targets.json") }
func (l layout) mutationPoints() string  { return filepath.Join(l.fuzzDir(), "mutation-points.json") }
func (l layout) seedsDir() string        { return filepath.Join(l.fuzzDir(), "seeds") }
func (l layout) survivalDir() string     { return filepath.Join(l.fuzzDir(), "survival") }
func (l layout) statusDir() string       { return filepath.Join(l.fuzzDir(), "status") }
func (l layout) threadsDir() string      { return filepath.Join(l.fuzzDir(), "threads") }
func (l layout) logDir() string          { return l.fuzzDir() }
func (l layout) sawOutDir() string       { return filepath.Join(l.workDir, "saw") }
func (l layout) scratchDir() string      { return filepath.Join(l.workDir, "scratch") }
