// Package worker implements one fuzzing thread's iteration loop: pick a
// seed, mutate it at a fresh point, verify the result, and score the
// outcome back into the shared scheduler.
package worker

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/sawmutest/sawmutest/internal/bitcode"
	"github.com/sawmutest/sawmutest/internal/corpus"
	"github.com/sawmutest/sawmutest/internal/logger"
	"github.com/sawmutest/sawmutest/internal/scheduler"
	"github.com/sawmutest/sawmutest/internal/transcript"
	"github.com/sawmutest/sawmutest/internal/verifier"
)

// Config holds the paths and external-tool settings every worker shares;
// only the thread ID differs between workers built from the same Config.
type Config struct {
	// BaseDir is the s2n-tls checkout (PATH_BASE): source of the .saw
	// scripts, spec/ and HMAC/ trees a worker's workspace is populated
	// from.
	BaseDir string
	// BaseBitcode is the shared, read-only base bitcode every worker
	// replays its trace from (work/bitcode/all_llvm.bc).
	BaseBitcode string
	// ThreadsDir is fuzz/threads, under which each worker gets its own
	// <tid>/{wks,saw} subtree.
	ThreadsDir string
	// MutationLib is the shared object passed to `opt -load`.
	MutationLib string
	// PathPrepend is prepended to PATH for both opt and saw invocations
	// (deps.llvm_bin and deps.saw_bin).
	PathPrepend []string
	// Denylist excludes specific top-level .saw scripts from both the
	// workspace copy and verification (e.g. lengthy, nondeterministic
	// proofs).
	Denylist []string
	// VerifierTimeout bounds a single script's verification run.
	VerifierTimeout time.Duration
}

// Worker runs one fuzzing thread's loop against a shared scheduler and
// seed corpus.
type Worker struct {
	TID    int
	cfg    Config
	sched  *scheduler.GlobalState
	seeds  *corpus.SeedStore
	surv   *corpus.SurvivalStore
	points []bitcode.MutationPoint
	rng    *rand.Rand

	wksDir string
	sawDir string

	bitDriver *bitcode.Driver
	verDriver *verifier.Driver
}

// New builds a Worker for thread tid. Callers must call Setup before Run.
func New(tid int, cfg Config, sched *scheduler.GlobalState, seeds *corpus.SeedStore, surv *corpus.SurvivalStore, points []bitcode.MutationPoint) *Worker {
	wksDir := filepath.Join(cfg.ThreadsDir, fmt.Sprintf("%d", tid), "wks")
	sawDir := filepath.Join(cfg.ThreadsDir, fmt.Sprintf("%d", tid), "saw")

	return &Worker{
		TID:    tid,
		cfg:    cfg,
		sched:  sched,
		seeds:  seeds,
		surv:   surv,
		points: points,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano() + int64(tid))),
		wksDir: wksDir,
		sawDir: sawDir,
		bitDriver: &bitcode.Driver{
			OptBin:      "opt",
			LibPath:     cfg.MutationLib,
			WorkDir:     wksDir,
			PathPrepend: cfg.PathPrepend,
		},
		verDriver: &verifier.Driver{
			SawBin:      "saw",
			WorkDir:     wksDir,
			PathPrepend: cfg.PathPrepend,
			Timeout:     cfg.VerifierTimeout,
		},
	}
}

// Setup populates this worker's private workspace (wks/ and saw/ under
// fuzz/threads/<tid>/) by copying the base workspace's scripts and spec
// trees, so every worker verifies against its own disjoint filesystem
// region.
func (w *Worker) Setup() error {
	if err := setupWorkspace(w.cfg.BaseDir, w.wksDir, w.cfg.Denylist); err != nil {
		return err
	}
	return nil
}

// Run executes iterations until the scheduler's halt flag is set or ctx is
// canceled. It returns the error of the first iteration that fails.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if w.sched.FlagHalt() {
			logger.Info("worker %d: halt flag set, exiting", w.TID)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := w.iterate(ctx); err != nil {
			logger.Error("worker %d: iteration failed: %v", w.TID, err)
			return err
		}
	}
}

// iterate runs one pick-mutate-verify-score pass. A skipped iteration (no
// fresh mutation point available, the mutation tool declined the chosen
// point, or the verifier raised an exception) is not an error: it simply
// returns to the caller to try again with a new seed. A declined mutation
// ends the iteration; no other point is tried for the same seed.
func (w *Worker) iterate(ctx context.Context) error {
	base, _, err := w.sched.NextSeed()
	if err != nil {
		return err
	}

	seed, err := w.seeds.Read(base)
	if err != nil {
		return err
	}
	oldTrace, oldCov := seed.Trace, seed.Cov

	point, ok := w.pickFreshPoint(oldTrace)
	if !ok {
		logger.Debug("worker %d: seed %d has no fresh mutation point left, skipping", w.TID, base)
		return nil
	}

	bcPath := filepath.Join(w.wksDir, "bitcode", "all_llvm.bc")
	tracePath := filepath.Join(w.wksDir, "bitcode", "trace.json")
	if err := oldTrace.Save(tracePath); err != nil {
		return err
	}
	if err := w.bitDriver.Replay(ctx, w.cfg.BaseBitcode, bcPath, tracePath); err != nil {
		return fmt.Errorf("worker %d: replay failed: %w", w.TID, err)
	}

	mutateOut := filepath.Join(w.wksDir, "bitcode", "mutate_result.json")
	result, err := w.bitDriver.Mutate(ctx, point, bcPath, bcPath, mutateOut)
	if err != nil {
		return fmt.Errorf("worker %d: mutate failed: %w", w.TID, err)
	}
	if !result.Changed {
		logger.Debug("worker %d: mutation at %s declined, skipping", w.TID, point)
		return nil
	}

	step := bitcode.StepFromMutateResult(point, result)
	newTrace := oldTrace.Append(step)
	if len(newTrace) != len(oldTrace)+1 {
		return fmt.Errorf("worker %d: trace length invariant violated", w.TID)
	}

	_ = verifier.VerifyAll(ctx, w.verDriver, w.wksDir, w.sawDir, w.cfg.Denylist)

	scripts, err := verifier.CollectTopLevelScripts(w.wksDir, w.cfg.Denylist)
	if err != nil {
		return fmt.Errorf("worker %d: failed to list scripts: %w", w.TID, err)
	}

	newCov, hasException, err := transcript.CollectErrors(w.wksDir, w.sawDir, scripts)
	if err != nil {
		return fmt.Errorf("worker %d: transcript parse failed: %w", w.TID, err)
	}
	if hasException {
		logger.Debug("worker %d: verifier raised an exception, skipping iteration", w.TID)
		return nil
	}

	eliminated := 0
	for _, old := range oldCov {
		if !containsVerificationError(newCov, old) {
			eliminated++
		}
	}
	additions := w.sched.UpdateCoverage(newCov)
	novelty := eliminated + additions

	if novelty > 0 {
		if err := w.sched.UpdateSeedScore(base, 2); err != nil {
			return err
		}
	}

	if len(newCov) == 0 {
		survivalID, err := w.surv.Allocate()
		if err != nil {
			return err
		}
		logger.Info("worker %d: mutant at %s survived, recording as survival %d", w.TID, point, survivalID)
		return w.surv.Write(survivalID, newTrace)
	}

	newScore := scheduler.DefaultSeedScore + novelty - 5*len(newCov) - len(newTrace)
	if newScore < 0 {
		newScore = 0
	}
	newID, err := w.seeds.Allocate()
	if err != nil {
		return err
	}
	if err := w.seeds.Write(corpus.Seed{ID: newID, Trace: newTrace, Cov: newCov, Score: newScore}); err != nil {
		return err
	}
	w.sched.AddSeed(newID, newScore)
	logger.Info("worker %d: seed %d discovered from %d (novelty=%d, score=%d)", w.TID, newID, base, novelty, newScore)
	return nil
}

// pickFreshPoint samples the catalogue without replacement until it finds
// a point whose (Function, Instruction) is absent from trace, bounding the
// search to the catalogue's size (spec B1): an exhausted search is
// reported via ok=false rather than blocking or erroring.
func (w *Worker) pickFreshPoint(trace bitcode.Trace) (bitcode.MutationPoint, bool) {
	order := w.rng.Perm(len(w.points))
	for _, idx := range order {
		p := w.points[idx]
		if !trace.Contains(p) {
			return p, true
		}
	}
	return bitcode.MutationPoint{}, false
}

func containsVerificationError(cov []transcript.VerificationError, candidate transcript.VerificationError) bool {
	for _, c := range cov {
		if c.Equal(candidate) {
			return true
		}
	}
	return false
}

