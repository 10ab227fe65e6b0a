package bitcode

import (
	"context"
	"fmt"
)

// InitPaths collects the on-disk locations MutationInit reads from and
// writes to.
type InitPaths struct {
	BaseDir            string // the checkout root the SAW scripts live under
	BitcodeIn          string // work/bitcode/all_llvm.bc
	BitcodeOut         string // the pass's pass-through output for the init action
	EntryTargetsPath   string // work/fuzz/entry-targets.json
	MutationPointsPath string // work/fuzz/mutation-points.json
	Denylist           []string
}

// MutationInit builds (or, if the catalogue already exists, simply loads)
// the full mutation-point catalogue. It is safe to call repeatedly: once
// mutation-points.json exists the expensive scan-and-invoke-opt steps are
// skipped entirely.
func MutationInit(ctx context.Context, driver *Driver, paths InitPaths) ([]MutationPoint, error) {
	if MutationPointsExist(paths.MutationPointsPath) {
		return LoadMutationPoints(paths.MutationPointsPath)
	}

	targets, err := CollectVerifiedFunctions(paths.BaseDir, paths.Denylist)
	if err != nil {
		return nil, fmt.Errorf("bitcode: failed to collect verified functions: %w", err)
	}
	if err := WriteEntryTargets(paths.EntryTargetsPath, targets); err != nil {
		return nil, err
	}

	if err := driver.Init(ctx, paths.BitcodeIn, paths.BitcodeOut, paths.EntryTargetsPath, paths.MutationPointsPath); err != nil {
		return nil, fmt.Errorf("bitcode: init pass failed: %w", err)
	}

	return LoadMutationPoints(paths.MutationPointsPath)
}
