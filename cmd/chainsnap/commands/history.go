package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/cli/output"
	"github.com/marmos91/chainsnap/internal/cli/prompt"
	"github.com/marmos91/chainsnap/internal/cli/timeutil"
	"github.com/marmos91/chainsnap/pkg/history"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/pipeline"
)

var (
	historyAction  string
	historyNetwork string
	historyLimit   int
	historyOutput  string
	pruneOlderThan time.Duration
	pruneForce     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded pipeline runs",
	Long: `Inspect the run history database. Every invocation records one row per
network it acted on, including skipped and locked runs.

Examples:
  # Show the 20 most recent runs
  chainsnap history list

  # Show failed publish runs for mainnet
  chainsnap history list --action publish --network mainnet

  # Show one run with its target outcomes
  chainsnap history show 3f1c0f6e-8a0b-4c7e-9d43-0d3c1d5b2a11

  # Drop runs older than 90 days
  chainsnap history prune --older-than 2160h`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

func init() {
	historyListCmd.Flags().StringVar(&historyAction, "action", "", "Filter by action (publish, distribute, run, restart)")
	historyListCmd.Flags().StringVar(&historyNetwork, "network", "", "Filter by network (mainnet, testnet)")
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show (0 for all)")
	historyListCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format (table|json|yaml)")

	historyShowCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format (table|json|yaml)")

	historyPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 90*24*time.Hour, "Delete runs started before this age")
	historyPruneCmd.Flags().BoolVarP(&pruneForce, "force", "f", false, "Skip confirmation prompt")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
}

// runList renders history rows.
type runList []history.Run

func (l runList) Headers() []string {
	return []string{"ID", "STARTED", "ACTION", "NETWORK", "RESULT", "DURATION", "ARCHIVE", "ERROR"}
}

func (l runList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		row := runRow(r)
		rows = append(rows, []string{
			shortID(r.ID),
			timeutil.FormatTime(r.StartedAt),
			r.Action,
			row[0],
			row[2],
			row[5],
			row[3],
			row[6],
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(historyOutput)
	if err != nil {
		return err
	}

	filter := history.Filter{Limit: historyLimit}
	if historyAction != "" {
		a, err := pipeline.ParseAction(historyAction)
		if err != nil {
			return err
		}
		filter.Action = a.String()
	}
	if historyNetwork != "" {
		n, err := instance.ParseNetwork(historyNetwork)
		if err != nil {
			return err
		}
		filter.Network = string(n)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if format == output.FormatTable && len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	return output.Stdout(format).Print(runList(runs))
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(historyOutput)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := findRun(cmd, store, args[0])
	if err != nil {
		return err
	}

	if format != output.FormatTable {
		return output.Stdout(format).Print(run)
	}

	row := runRow(*run)
	pairs := [][2]string{
		{"ID", run.ID},
		{"Action", run.Action},
		{"Network", row[0]},
		{"Retention", row[1]},
		{"Result", string(run.Result)},
		{"Started", timeutil.FormatTime(run.StartedAt)},
		{"Finished", timeutil.FormatTime(run.FinishedAt)},
		{"Duration", row[5]},
		{"Archive", row[3]},
		{"Size", row[4]},
		{"SHA256", orDash(run.SHA256)},
		{"Log", orDash(run.LogPath)},
		{"Error", row[6]},
	}
	if err := output.PrintKeyValues(os.Stdout, pairs); err != nil {
		return err
	}

	if len(run.Targets) == 0 {
		return nil
	}
	fmt.Println()
	table := output.NewTable("TARGET", "KIND", "RESULT", "UPLOADED", "PRUNED", "DURATION", "ERROR")
	for _, t := range run.Targets {
		result := "ok"
		if !t.Success {
			result = "failed"
		}
		table.AddRow(t.Target, t.Kind, result, strconv.Itoa(t.Uploaded), strconv.Itoa(t.Pruned),
			timeutil.FormatDuration(time.Duration(t.DurationMs)*time.Millisecond), orDash(t.Error))
	}
	return output.PrintTable(os.Stdout, table)
}

// findRun resolves a full id, or a unique prefix of one among recent runs.
func findRun(cmd *cobra.Command, store *history.Store, id string) (*history.Run, error) {
	run, err := store.Get(cmd.Context(), id)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, history.ErrRunNotFound) {
		return nil, err
	}

	runs, err := store.List(cmd.Context(), history.Filter{})
	if err != nil {
		return nil, err
	}
	var match *history.Run
	for i := range runs {
		if len(runs[i].ID) >= len(id) && runs[i].ID[:len(id)] == id {
			if match != nil {
				return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run %q: %w", id, history.ErrRunNotFound)
	}
	return match, nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if pruneOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	cutoff := time.Now().Add(-pruneOlderThan)

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete runs started before %s", timeutil.FormatTime(cutoff)), pruneForce)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	removed, err := store.Prune(cmd.Context(), cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	fmt.Printf("Removed %d runs.\n", removed)
	return nil
}
