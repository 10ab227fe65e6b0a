package bitcode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/sawmutest/sawmutest/internal/procrunner"
)

// Driver wraps invocations of the external `opt -load <lib> -mutest`
// LLVM pass: the single binary that knows how to enumerate mutation
// points, replay a recorded trace, or apply one new mutation.
type Driver struct {
	// OptBin is the `opt` executable, normally resolved from
	// deps.llvm_bin on PATH.
	OptBin string
	// LibPath is the shared object passed to `opt -load`.
	LibPath string
	// WorkDir is the directory the pass runs from (PATH_BASE in the
	// reference driver): mutation rules reference files relative to it.
	WorkDir string
	// PathPrepend is prepended to PATH for the duration of the call
	// (deps.llvm_bin), so `opt` and friends resolve without relying on
	// the caller's ambient PATH.
	PathPrepend []string
}

// NewDriver builds a Driver with "opt" as the default binary name.
func NewDriver(workDir, libPath string, pathPrepend []string) *Driver {
	return &Driver{
		OptBin:      "opt",
		LibPath:     libPath,
		WorkDir:     workDir,
		PathPrepend: pathPrepend,
	}
}

func (d *Driver) run(ctx context.Context, bcFrom, bcInto string, action []string) error {
	argv := append([]string{d.OptBin, "-load", d.LibPath, "-mutest", "-o", bcInto, bcFrom}, action...)
	return procrunner.Run(ctx, argv, procrunner.Options{
		Dir:         d.WorkDir,
		PathPrepend: d.PathPrepend,
	})
}

// Init runs the "init" action: scans bcFrom for mutation points reachable
// from the functions listed in inputPath (entry-targets.json) and writes
// the catalogue to outputPath (mutation-points.json). It writes bcInto as
// a pass-through copy of the bitcode (the pass does not mutate anything
// during init).
func (d *Driver) Init(ctx context.Context, bcFrom, bcInto, inputPath, outputPath string) error {
	return d.run(ctx, bcFrom, bcInto, []string{
		"init",
		"-mutest-input", inputPath,
		"-mutest-output", outputPath,
	})
}

// Replay runs the "replay" action: re-applies every step recorded in the
// trace at tracePath, in order, producing bcInto.
func (d *Driver) Replay(ctx context.Context, bcFrom, bcInto, tracePath string) error {
	return d.run(ctx, bcFrom, bcInto, []string{
		"replay",
		"-mutest-input", tracePath,
	})
}

// MutateResult is the JSON document the "mutate" action writes to its
// output file: whether anything changed, and the opaque step payload to
// record if so.
type MutateResult struct {
	Changed bool            `json:"changed"`
	Package json.RawMessage `json:"package"`
}

// Mutate runs the "mutate" action for a single MutationPoint, writing the
// result (changed + opaque package payload) to outputPath and the mutated
// bitcode to bcInto. Callers must check Changed: a mutation point can be
// present in the catalogue yet produce no change for a given bitcode
// state, in which case the caller should retry with a different point.
func (d *Driver) Mutate(ctx context.Context, point MutationPoint, bcFrom, bcInto, outputPath string) (*MutateResult, error) {
	if err := d.run(ctx, bcFrom, bcInto, []string{
		"mutate",
		"-mutest-target-rule", point.Rule,
		"-mutest-target-function", point.Function,
		"-mutest-target-instruction", strconv.Itoa(point.Instruction),
		"-mutest-output", outputPath,
	}); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("bitcode: failed to read mutate result %s: %w", outputPath, err)
	}
	var result MutateResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("bitcode: failed to parse mutate result %s: %w", outputPath, err)
	}
	return &result, nil
}

// StepFromMutateResult builds the MutationStep a successful (Changed)
// mutate result corresponds to.
func StepFromMutateResult(point MutationPoint, result *MutateResult) MutationStep {
	return MutationStep{
		Rule:        point.Rule,
		Function:    point.Function,
		Instruction: point.Instruction,
		Package:     result.Package,
	}
}
