package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sawmutest/sawmutest/internal/logger"
	"github.com/sawmutest/sawmutest/internal/procrunner"
)

// NewBitcodeCommand builds the "bitcode" subcommand.
func NewBitcodeCommand() *cobra.Command {
	var clean bool

	cmd := &cobra.Command{
		Use:   "bitcode",
		Short: "Build the base LLVM bitcode (delegates to the external make build).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			l := newLayout(cfg.WorkDir)
			return runBitcode(cmd.Context(), cfg.BaseDir, l.bitcodeDir(), pathPrepend(cfg), clean)
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", false, "run 'make clean' before building")
	return cmd
}

// runBitcode mirrors the reference build_bitcode step: an optional `make
// clean`, then `make -j <NumCPU> bitcode/all_llvm.bc` from baseDir, copying
// the result into the work directory's bitcode/all_llvm.bc so every worker
// replays from a stable, working-tree-independent copy.
func runBitcode(ctx context.Context, baseDir, bitcodeDir string, prepend []string, clean bool) error {
	if clean {
		logger.Info("bitcode: running make clean in %s", baseDir)
		if err := procrunner.Run(ctx, []string{"make", "clean"}, procrunner.Options{
			Dir:         baseDir,
			PathPrepend: prepend,
		}); err != nil {
			return fmt.Errorf("bitcode: make clean failed: %w", err)
		}
	}

	logger.Info("bitcode: building bitcode/all_llvm.bc in %s", baseDir)
	jobs := fmt.Sprintf("%d", runtime.NumCPU())
	if err := procrunner.Run(ctx, []string{"make", "-j", jobs, "bitcode/all_llvm.bc"}, procrunner.Options{
		Dir:         baseDir,
		PathPrepend: prepend,
	}); err != nil {
		return fmt.Errorf("bitcode: make build failed: %w", err)
	}

	if err := os.MkdirAll(bitcodeDir, 0755); err != nil {
		return fmt.Errorf("bitcode: failed to create %s: %w", bitcodeDir, err)
	}

	src := filepath.Join(baseDir, "bitcode", "all_llvm.bc")
	dst := filepath.Join(bitcodeDir, "all_llvm.bc")
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("bitcode: failed to copy built bitcode: %w", err)
	}

	logger.Info("bitcode: wrote %s", dst)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
