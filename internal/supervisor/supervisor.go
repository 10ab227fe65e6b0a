// Package supervisor owns the fuzz campaign's worker pool: spawning
// workers staggered at startup, running a periodic maintenance tick
// (core-dump reaping, coverage snapshotting, liveness logging, command
// polling), and respawning any worker that dies unexpectedly.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/sawmutest/sawmutest/internal/bitcode"
	"github.com/sawmutest/sawmutest/internal/corpus"
	"github.com/sawmutest/sawmutest/internal/logger"
	"github.com/sawmutest/sawmutest/internal/scheduler"
	"github.com/sawmutest/sawmutest/internal/worker"
)

// Config bundles a Supervisor's own knobs on top of the worker.Config
// every spawned worker shares.
type Config struct {
	Worker worker.Config
	// StatusDir is fuzz/status: where cov.json is dumped and cmd is
	// polled from.
	StatusDir string
	// NumWorkers is how many worker threads to keep alive. Defaults to
	// runtime.NumCPU()/2 if zero (left to the caller to resolve, so this
	// package has no runtime dependency on GOMAXPROCS).
	NumWorkers int
	// StaggerInterval is the delay between starting successive workers at
	// launch, to avoid a startup thundering herd.
	StaggerInterval time.Duration
	// TickInterval is how often the maintenance pass runs.
	TickInterval time.Duration
}

// exitCommand is the only recognized content of the status/cmd file.
const exitCommand = "exit"

// Supervisor runs Config.NumWorkers worker.Worker instances against a
// shared scheduler, keeping the pool alive until told to halt.
type Supervisor struct {
	cfg    Config
	sched  *scheduler.GlobalState
	seeds  *corpus.SeedStore
	surv   *corpus.SurvivalStore
	points []bitcode.MutationPoint

	mu      sync.Mutex
	nextTID int
	live    map[int]chan error // tid -> channel the worker's Run result is delivered on
}

// New builds a Supervisor. Callers own scheduler/store construction and
// must have already run mutation_init (the catalogue must be non-empty)
// and EnsureBaseSeed before calling Run.
func New(cfg Config, sched *scheduler.GlobalState, seeds *corpus.SeedStore, surv *corpus.SurvivalStore, points []bitcode.MutationPoint) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		sched:  sched,
		seeds:  seeds,
		surv:   surv,
		points: points,
		live:   make(map[int]chan error),
	}
}

// Run spawns the worker pool, staggered by StaggerInterval, then blocks
// running the maintenance tick loop until the scheduler's halt flag is
// set (via the status/cmd file or an external SetFlagHalt call) or ctx is
// canceled. On return it has joined every worker, aggregating any
// per-worker errors with multierr so none are silently dropped.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < s.cfg.NumWorkers; i++ {
		s.spawn(ctx)
		if i < s.cfg.NumWorkers-1 && s.cfg.StaggerInterval > 0 {
			time.Sleep(s.cfg.StaggerInterval)
		}
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var joinErr error
	for {
		select {
		case <-ctx.Done():
			joinErr = multierr.Append(joinErr, ctx.Err())
			return multierr.Append(joinErr, s.join())

		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				logger.Error("supervisor: maintenance tick failed: %v", err)
			}
			if s.sched.FlagHalt() {
				// Cooperative shutdown: workers notice the halt flag at
				// their own next iteration boundary, so ctx is left
				// uncanceled here rather than forcing an in-flight
				// subprocess call to abort.
				return s.join()
			}
			s.respawnDead(ctx)
		}
	}
}

// spawn starts one worker with a freshly allocated, monotonically
// increasing thread ID and records its completion channel.
func (s *Supervisor) spawn(ctx context.Context) {
	s.mu.Lock()
	tid := s.nextTID
	s.nextTID++
	done := make(chan error, 1)
	s.live[tid] = done
	s.mu.Unlock()

	w := worker.New(tid, s.cfg.Worker, s.sched, s.seeds, s.surv, s.points)

	go func() {
		if err := w.Setup(); err != nil {
			done <- fmt.Errorf("worker %d: setup failed: %w", tid, err)
			return
		}
		done <- w.Run(ctx)
	}()

	logger.Info("supervisor: spawned worker %d", tid)
}

// respawnDead checks every tracked worker's completion channel without
// blocking; a worker whose channel has fired (it returned, meaning it
// died, the only way Run returns while the halt flag is unset and ctx is
// live) is replaced with a freshly spawned one at a new tid, preserving
// the pool size invariant.
func (s *Supervisor) respawnDead(ctx context.Context) {
	s.mu.Lock()
	dead := make([]int, 0)
	for tid, done := range s.live {
		select {
		case err := <-done:
			if err != nil {
				logger.Error("worker %d died: %v", tid, err)
			} else {
				logger.Warn("worker %d exited without error but before halt, respawning", tid)
			}
			dead = append(dead, tid)
		default:
		}
	}
	for _, tid := range dead {
		delete(s.live, tid)
	}
	s.mu.Unlock()

	for range dead {
		s.spawn(ctx)
	}
}

// join waits for every currently tracked worker to finish and aggregates
// their errors.
func (s *Supervisor) join() error {
	s.mu.Lock()
	pending := make([]chan error, 0, len(s.live))
	for _, done := range s.live {
		pending = append(pending, done)
	}
	s.live = make(map[int]chan error)
	s.mu.Unlock()

	var joined error
	for _, done := range pending {
		err := <-done
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		joined = multierr.Append(joined, err)
	}
	return joined
}

// tick runs one maintenance pass: reaping core dumps, dumping global
// coverage, logging liveness, and polling the command file, each as an
// independent sub-task under one errgroup since none depends on another's
// result.
func (s *Supervisor) tick(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := reapCoreDumps(s.cfg.Worker.ThreadsDir)
		if err != nil {
			return fmt.Errorf("core dump reap: %w", err)
		}
		if n > 0 {
			logger.Info("supervisor: reaped %d core dump(s)", n)
		}
		return nil
	})

	g.Go(func() error {
		path := filepath.Join(s.cfg.StatusDir, "cov.json")
		if err := s.sched.DumpCov(path); err != nil {
			return fmt.Errorf("coverage dump: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.logLiveness()
		return nil
	})

	g.Go(func() error {
		return s.pollCommand()
	})

	return g.Wait()
}

func (s *Supervisor) logLiveness() {
	s.mu.Lock()
	n := len(s.live)
	s.mu.Unlock()
	logger.Info("supervisor: %d worker(s) alive, %d error(s) in coverage set", n, len(s.sched.Coverage()))
}

// pollCommand reads status/cmd, if present, and acts on a recognized
// command. The file is truncated after being read so a stale command
// never re-fires on the next tick.
func (s *Supervisor) pollCommand() error {
	path := filepath.Join(s.cfg.StatusDir, "cmd")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("command poll: %w", err)
	}

	cmd := strings.TrimSpace(string(data))
	if cmd == "" {
		return nil
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return fmt.Errorf("command poll: failed to clear %s: %w", path, err)
	}

	switch cmd {
	case exitCommand:
		logger.Info("supervisor: received exit command, halting")
		s.sched.SetFlagHalt()
	default:
		logger.Error("supervisor: unrecognized command %q", cmd)
	}
	return nil
}

// reapCoreDumps deletes core-dump files ("core" or "core.<pid>") found
// anywhere under dir, returning how many were removed.
func reapCoreDumps(dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	count := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if name == "core" || strings.HasPrefix(name, "core.") {
			if rmErr := os.Remove(path); rmErr != nil {
				return rmErr
			}
			count++
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("supervisor: failed to walk %s: %w", dir, err)
	}
	return count, nil
}
