// Package app wires the sawmutest CLI's subcommands on top of the
// internal bitcode/verifier/transcript/corpus/scheduler/worker/supervisor
// packages.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sawmutest/sawmutest/internal/config"
	"github.com/sawmutest/sawmutest/internal/logger"
)

var (
	configPath string
	verbosity  int
	logToFile  bool
)

// NewRootCommand builds the sawmutest root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sawmutest",
		Short: "A coverage-guided mutation tester for SAW-verified bitcode.",
		Long: `sawmutest mutates a formally verified LLVM bitcode build and checks
whether the SAW verifier still accepts it, treating every distinct way the
proofs can fail as a coverage signal to guide further mutation.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: configs/config.yaml)")
	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	cmd.PersistentFlags().BoolVarP(&logToFile, "log", "l", false, "also log to <work_dir>/fuzz/log.txt")

	cmd.AddCommand(NewBitcodeCommand())
	cmd.AddCommand(NewVerifyCommand())
	cmd.AddCommand(NewPassCommand())
	cmd.AddCommand(NewFuzzCommand())
	cmd.AddCommand(NewMiscCommand())

	return cmd
}

// loadConfig reads config.yaml and initializes the process-wide logger per
// the global -v/-l flags. Every subcommand's RunE starts with this.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := logger.VerbosityToLevel(verbosity).String()
	if logToFile {
		logDir := newLayout(cfg.WorkDir).logDir()
		if err := logger.InitWithFile(level, logDir); err != nil {
			return nil, fmt.Errorf("app: failed to initialize file logging: %w", err)
		}
	} else {
		logger.Init(level)
	}

	return cfg, nil
}

// pathPrepend returns the PATH entries every opt/saw subprocess call should
// be scoped with, per config's deps.saw_bin/deps.llvm_bin.
func pathPrepend(cfg *config.Config) []string {
	var prepend []string
	if cfg.Deps.SawBin != "" {
		prepend = append(prepend, cfg.Deps.SawBin)
	}
	if cfg.Deps.LLVMBin != "" {
		prepend = append(prepend, cfg.Deps.LLVMBin)
	}
	return prepend
}

// ensureDir creates dir (and parents) if it does not already exist.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("app: failed to create %s: %w", dir, err)
	}
	return nil
}

// removeAll deletes dir and everything under it, used by `fuzz --clean` to
// discard a prior campaign's state before starting fresh.
func removeAll(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("app: failed to remove %s: %w", dir, err)
	}
	return nil
}
