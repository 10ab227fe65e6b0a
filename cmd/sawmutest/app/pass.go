package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sawmutest/sawmutest/internal/bitcode"
	"github.com/sawmutest/sawmutest/internal/logger"
)

// NewPassCommand builds the "pass" command group: init, replay, test.
func NewPassCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pass",
		Short: "Drive the external mutation pass directly.",
	}
	cmd.AddCommand(newPassInitCommand())
	cmd.AddCommand(newPassReplayCommand())
	cmd.AddCommand(newPassTestCommand())
	return cmd
}

func newPassInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Build (or load) the mutation-point catalogue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			l := newLayout(cfg.WorkDir)
			driver := bitcode.NewDriver(cfg.BaseDir, cfg.Mutation.LibPath, pathPrepend(cfg))

			if err := ensureDir(l.scratchDir()); err != nil {
				return err
			}
			points, err := bitcode.MutationInit(cmd.Context(), driver, bitcode.InitPaths{
				BaseDir:            cfg.BaseDir,
				BitcodeIn:          l.baseBitcode(),
				BitcodeOut:         filepath.Join(l.scratchDir(), "init_pass_through.bc"),
				EntryTargetsPath:   l.entryTargets(),
				MutationPointsPath: l.mutationPoints(),
				Denylist:           cfg.Mutation.Denylist,
			})
			if err != nil {
				return err
			}
			logger.Info("pass init: catalogue has %d mutation points", len(points))
			fmt.Printf("%d mutation points\n", len(points))
			return nil
		},
	}
}

func newPassReplayCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "replay <trace.json>",
		Short: "Replay a recorded trace against the base bitcode.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			l := newLayout(cfg.WorkDir)
			driver := bitcode.NewDriver(cfg.BaseDir, cfg.Mutation.LibPath, pathPrepend(cfg))

			if output == "" {
				output = filepath.Join(l.scratchDir(), "replayed.bc")
			}
			if err := ensureDir(filepath.Dir(output)); err != nil {
				return err
			}

			if err := driver.Replay(cmd.Context(), l.baseBitcode(), output, args[0]); err != nil {
				return err
			}
			fmt.Printf("replayed into %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "path to write the replayed bitcode to (default: <work_dir>/scratch/replayed.bc)")
	return cmd
}

func newPassTestCommand() *cobra.Command {
	var (
		filterRule        string
		filterFunction    string
		filterInstruction int
		repetition        int
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Round-trip diagnostic: mutate then replay every catalogue point, warning on no-op mutations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			l := newLayout(cfg.WorkDir)
			driver := bitcode.NewDriver(cfg.BaseDir, cfg.Mutation.LibPath, pathPrepend(cfg))

			if err := ensureDir(l.scratchDir()); err != nil {
				return err
			}
			points, err := bitcode.MutationInit(cmd.Context(), driver, bitcode.InitPaths{
				BaseDir:            cfg.BaseDir,
				BitcodeIn:          l.baseBitcode(),
				BitcodeOut:         filepath.Join(l.scratchDir(), "init_pass_through.bc"),
				EntryTargetsPath:   l.entryTargets(),
				MutationPointsPath: l.mutationPoints(),
				Denylist:           cfg.Mutation.Denylist,
			})
			if err != nil {
				return err
			}

			warnings := 0
			tested := 0
			for _, point := range points {
				if cmd.Flags().Changed("filter-rule") && point.Rule != filterRule {
					continue
				}
				if cmd.Flags().Changed("filter-function") && point.Function != filterFunction {
					continue
				}
				if cmd.Flags().Changed("filter-instruction") && point.Instruction != filterInstruction {
					continue
				}

				tested++
				logger.Info("pass test: %s", point)
				for k := 0; k < repetition; k++ {
					mutateOut := filepath.Join(l.scratchDir(), "mutate_result.json")
					mutatedBC := filepath.Join(l.scratchDir(), "mutated.bc")
					result, err := driver.Mutate(cmd.Context(), point, l.baseBitcode(), mutatedBC, mutateOut)
					if err != nil {
						return fmt.Errorf("pass test: mutate failed at %s (rep %d): %w", point, k, err)
					}
					if !result.Changed {
						logger.Warn("pass test: %s produced no change (rep %d)", point, k)
						warnings++
						continue
					}

					step := bitcode.StepFromMutateResult(point, result)
					tracePath := filepath.Join(l.scratchDir(), "trace.json")
					if err := (bitcode.Trace{step}).Save(tracePath); err != nil {
						return err
					}

					replayedBC := filepath.Join(l.scratchDir(), "replayed.bc")
					if err := driver.Replay(cmd.Context(), l.baseBitcode(), replayedBC, tracePath); err != nil {
						return fmt.Errorf("pass test: replay failed at %s (rep %d): %w", point, k, err)
					}
					logger.Debug("pass test: %s rep %d round-tripped", point, k)
				}
			}

			fmt.Printf("tested %d point(s), %d no-op warning(s)\n", tested, warnings)
			return nil
		},
	}

	cmd.Flags().StringVar(&filterRule, "filter-rule", "", "only test points with this rule")
	cmd.Flags().StringVar(&filterFunction, "filter-function", "", "only test points with this function")
	cmd.Flags().IntVar(&filterInstruction, "filter-instruction", 0, "only test points with this instruction index")
	cmd.Flags().IntVar(&repetition, "repetition", 1, "how many times to repeat mutate+replay per point")

	return cmd
}
