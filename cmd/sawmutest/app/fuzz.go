package app

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sawmutest/sawmutest/internal/bitcode"
	"github.com/sawmutest/sawmutest/internal/config"
	"github.com/sawmutest/sawmutest/internal/corpus"
	"github.com/sawmutest/sawmutest/internal/logger"
	"github.com/sawmutest/sawmutest/internal/scheduler"
	"github.com/sawmutest/sawmutest/internal/supervisor"
	"github.com/sawmutest/sawmutest/internal/worker"
)

// NewFuzzCommand builds the "fuzz" subcommand.
func NewFuzzCommand() *cobra.Command {
	var (
		clean   bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Launch the coverage-guided mutation fuzzing loop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("jobs") {
				cfg.Workers = workers
			}
			if cfg.Workers <= 0 {
				cfg.Workers = numDefaultWorkers()
			}

			l := newLayout(cfg.WorkDir)
			if clean {
				logger.Info("fuzz: --clean requested, removing prior fuzz state under %s", l.fuzzDir())
				if err := removeAll(l.fuzzDir()); err != nil {
					return err
				}
			}

			return runFuzz(cmd, cfg, l)
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", false, "discard existing fuzz/ state and start a fresh campaign")
	cmd.Flags().IntVarP(&workers, "jobs", "j", 0, "number of worker threads (default: runtime.NumCPU()/2)")

	return cmd
}

func numDefaultWorkers() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

func runFuzz(cmd *cobra.Command, cfg *config.Config, l layout) error {
	for _, dir := range []string{l.bitcodeDir(), l.fuzzDir(), l.seedsDir(), l.survivalDir(), l.statusDir(), l.threadsDir()} {
		if err := ensureDir(dir); err != nil {
			return err
		}
	}

	bcDriver := bitcode.NewDriver(cfg.BaseDir, cfg.Mutation.LibPath, pathPrepend(cfg))
	points, err := bitcode.MutationInit(cmd.Context(), bcDriver, bitcode.InitPaths{
		BaseDir:            cfg.BaseDir,
		BitcodeIn:          l.baseBitcode(),
		BitcodeOut:         filepath.Join(l.scratchDir(), "init_pass_through.bc"),
		EntryTargetsPath:   l.entryTargets(),
		MutationPointsPath: l.mutationPoints(),
		Denylist:           cfg.Mutation.Denylist,
	})
	if err != nil {
		return fmt.Errorf("fuzz: failed to build mutation-point catalogue: %w", err)
	}
	logger.Info("fuzz: catalogue has %d mutation points", len(points))

	seeds, err := corpus.NewSeedStore(l.seedsDir())
	if err != nil {
		return err
	}
	if err := seeds.EnsureBaseSeed(scheduler.BaseSeedInitialScore(len(points))); err != nil {
		return fmt.Errorf("fuzz: failed to create base seed: %w", err)
	}

	surv, err := corpus.NewSurvivalStore(l.survivalDir())
	if err != nil {
		return err
	}

	sched, err := scheduler.LoadFromStore(seeds)
	if err != nil {
		return fmt.Errorf("fuzz: failed to load scheduler state: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		Worker: worker.Config{
			BaseDir:     cfg.BaseDir,
			BaseBitcode: l.baseBitcode(),
			ThreadsDir:  l.threadsDir(),
			MutationLib: cfg.Mutation.LibPath,
			PathPrepend: pathPrepend(cfg),
			Denylist:    cfg.Mutation.Denylist,
		},
		StatusDir:       l.statusDir(),
		NumWorkers:      cfg.Workers,
		StaggerInterval: cfg.Supervisor.StaggerInterval,
		TickInterval:    cfg.Supervisor.TickInterval,
	}, sched, seeds, surv, points)

	logger.Info("fuzz: starting %d worker(s)", cfg.Workers)
	return sup.Run(cmd.Context())
}
