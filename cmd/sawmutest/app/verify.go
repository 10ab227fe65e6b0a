package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawmutest/sawmutest/internal/logger"
	"github.com/sawmutest/sawmutest/internal/transcript"
	"github.com/sawmutest/sawmutest/internal/verifier"
)

// NewVerifyCommand builds the "verify" subcommand.
func NewVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify ALL|<script>",
		Short: "Run the verifier over one script or every top-level script, printing parsed errors.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			l := newLayout(cfg.WorkDir)
			driver := verifier.NewDriver(cfg.BaseDir, pathPrepend(cfg))

			var scripts []string
			if args[0] == "ALL" {
				scripts, err = verifier.CollectTopLevelScripts(cfg.BaseDir, cfg.Mutation.Denylist)
				if err != nil {
					return err
				}
			} else {
				scripts = []string{args[0]}
			}

			for _, script := range scripts {
				logger.Info("verify: running %s", script)
				if err := driver.Verify(cmd.Context(), script, l.sawOutDir()); err != nil {
					logger.Warn("verify: %s: %v", script, err)
				}
			}

			errs, hasException, err := transcript.CollectErrors(cfg.BaseDir, l.sawOutDir(), scripts)
			if err != nil {
				return fmt.Errorf("verify: failed to parse transcripts: %w", err)
			}
			if hasException {
				logger.Warn("verify: at least one script raised a verifier exception, see %s", l.sawOutDir())
			}

			if len(errs) == 0 {
				fmt.Println("no verification errors found")
				return nil
			}
			for _, e := range errs {
				fmt.Printf("%s: %+v\n", e.Item, e.Details)
			}
			return nil
		},
	}
	return cmd
}
