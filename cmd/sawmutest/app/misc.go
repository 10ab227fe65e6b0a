package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/sawmutest/sawmutest/internal/bitcode"
	"github.com/sawmutest/sawmutest/internal/corpus"
	"github.com/sawmutest/sawmutest/internal/logger"
	"github.com/sawmutest/sawmutest/internal/transcript"
)

// NewMiscCommand builds the "misc" command group: one-off diagnostics that
// don't belong under bitcode/verify/pass/fuzz.
func NewMiscCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "misc",
		Short: "Miscellaneous diagnostics over a campaign's on-disk state.",
	}
	cmd.AddCommand(newParseVerificationOutputCommand())
	cmd.AddCommand(newFilterSurvivalsCommand())
	return cmd
}

// newParseVerificationOutputCommand builds "misc parse_verification_output
// BASE|ALL|SEED|<tid>". BASE re-scans the workspace/saw-output pair a plain
// `verify` run leaves behind; ALL walks every worker's fuzz/threads/<tid>
// subtree; a bare integer scans that one thread; SEED instead dumps the
// coverage already recorded per seed (cov.json), since a live seed's
// verification transcripts have long since been overwritten by whichever
// thread produced it.
func newParseVerificationOutputCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse_verification_output BASE|ALL|SEED|<tid>",
		Short: "Re-parse recorded verifier transcripts and print the failures found.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			l := newLayout(cfg.WorkDir)

			switch args[0] {
			case "BASE":
				_, err := transcript.DumpVerificationOutput(cfg.BaseDir, l.sawOutDir(), os.Stdout)
				return err
			case "ALL":
				return dumpAllThreads(l)
			case "SEED":
				return dumpSeedCoverage(l)
			default:
				tid, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("misc: unrecognized selector %q (want BASE, ALL, SEED, or a thread id)", args[0])
				}
				return dumpThread(l, tid)
			}
		},
	}
}

func dumpAllThreads(l layout) error {
	entries, err := os.ReadDir(l.threadsDir())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no worker threads recorded yet")
			return nil
		}
		return fmt.Errorf("misc: failed to list %s: %w", l.threadsDir(), err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		fmt.Printf("=== thread %d ===\n", tid)
		if err := dumpThread(l, tid); err != nil {
			logger.Warn("misc: thread %d: %v", tid, err)
		}
	}
	return nil
}

func dumpThread(l layout, tid int) error {
	dir := filepath.Join(l.threadsDir(), strconv.Itoa(tid))
	wks := filepath.Join(dir, "wks")
	saw := filepath.Join(dir, "saw")
	_, err := transcript.DumpVerificationOutput(wks, saw, os.Stdout)
	return err
}

func dumpSeedCoverage(l layout) error {
	seeds, err := corpus.NewSeedStore(l.seedsDir())
	if err != nil {
		return err
	}
	ids, err := seeds.List()
	if err != nil {
		return err
	}
	sort.Ints(ids)

	for _, id := range ids {
		seed, err := seeds.Read(id)
		if err != nil {
			return err
		}
		if len(seed.Cov) == 0 {
			continue
		}
		fmt.Printf("seed %d (score %d):\n", id, seed.Score)
		for _, e := range seed.Cov {
			fmt.Printf("  %s: %+v\n", e.Item, e.Details)
		}
	}
	return nil
}

// newFilterSurvivalsCommand builds "misc filter-survivals". The survival
// store is append-only (internal/corpus.SurvivalStore never rewrites a
// record), so this only ever reports; it never deletes or rewrites a trace.
func newFilterSurvivalsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "filter-survivals",
		Short: "Flag survival traces that open with a no-op flip or whose later replacement repeats an earlier value in the same trace.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			l := newLayout(cfg.WorkDir)
			return runFilterSurvivals(l)
		},
	}
}

func runFilterSurvivals(l layout) error {
	surv, err := corpus.NewSurvivalStore(l.survivalDir())
	if err != nil {
		return err
	}
	ids, err := surv.List()
	if err != nil {
		return err
	}
	sort.Ints(ids)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"survival", "length", "first mutation", "status"})

	report := []byte("{}")
	filtered := 0
	for _, id := range ids {
		trace, err := surv.Read(id)
		if err != nil {
			return err
		}

		status := "kept"
		if isFiltered, reason := classifySurvival(trace); isFiltered {
			status = "filtered: " + reason
			filtered++
		}

		first := "-"
		if len(trace) > 0 {
			first = trace[0].Point().String()
		}
		table.Append([]string{strconv.Itoa(id), strconv.Itoa(len(trace)), first, status})

		path := fmt.Sprintf("survivals.%d", id)
		report, err = sjson.SetBytes(report, path, map[string]interface{}{
			"length": len(trace),
			"status": status,
		})
		if err != nil {
			return fmt.Errorf("misc: failed to build filter report entry for survival %d: %w", id, err)
		}
	}
	table.Render()

	reportPath := filepath.Join(l.statusDir(), "filter-report.json")
	if err := ensureDir(l.statusDir()); err != nil {
		return err
	}
	if err := os.WriteFile(reportPath, report, 0644); err != nil {
		return fmt.Errorf("misc: failed to write %s: %w", reportPath, err)
	}

	logger.Info("filter-survivals: %d of %d survival trace(s) flagged (append-only, nothing deleted); report at %s", filtered, len(ids), reportPath)
	return nil
}

// classifySurvival reports whether a survival trace is a known-uninteresting
// shape: a single no-op boolean flip, or a chain of constant replacements
// that eventually repeats an earlier replacement value. Traces shorter than
// two steps are never flagged -- there is no earlier mutation for the first
// step to repeat.
func classifySurvival(trace bitcode.Trace) (bool, string) {
	if len(trace) < 2 {
		return false, ""
	}

	first := gjson.ParseBytes(trace[0].Package)
	if !first.IsObject() {
		return false, ""
	}
	fields := first.Map()
	if len(fields) != 1 {
		return false, ""
	}

	if action, ok := fields["action"]; ok {
		if action.String() == "flip" {
			return true, "first mutation is a no-op boolean flip"
		}
		return false, ""
	}

	replField, ok := fields["repl"]
	if !ok {
		return false, ""
	}

	seen := map[string]struct{}{replField.Raw: {}}
	for _, step := range trace[1:] {
		parsed := gjson.ParseBytes(step.Package)
		if !parsed.IsObject() {
			break
		}
		stepFields := parsed.Map()
		if len(stepFields) != 1 {
			// Once the chain leaves the single-key-replacement shape, the
			// rest of the trace is a richer rewrite and stops counting as
			// "repeated constant replacement".
			break
		}
		repl, ok := stepFields["repl"]
		if !ok {
			break
		}
		if _, dup := seen[repl.Raw]; dup {
			return true, "a later mutation repeats an earlier replacement value"
		}
		seen[repl.Raw] = struct{}{}
	}
	return false, ""
}
