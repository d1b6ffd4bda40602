package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/bytesize"
	"github.com/marmos91/chainsnap/internal/cli/output"
	"github.com/marmos91/chainsnap/internal/cli/timeutil"
	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/history"
	"github.com/marmos91/chainsnap/pkg/pipeline"
)

var (
	pipelineNetworks []string
	pipelineOutput   string
)

var publishCmd = newPipelineCmd(pipeline.ActionPublish,
	"Snapshot and publish locally",
	`Locate every running node, confirm it is fully synced, stop it, archive its
chain data, publish the archive with its checksum and guide, and start the
node again.

The node is restarted even when packaging fails or the run is interrupted.

Examples:
  # Publish every located node
  chainsnap publish

  # Publish mainnet only
  chainsnap publish --network mainnet`)

var distributeCmd = newPipelineCmd(pipeline.ActionDistribute,
	"Mirror completed publications to remote targets",
	`Mirror each network's local publication directory to every enabled target.
The node is never touched.

A network whose status.json is still in progress is a fatal error: its
directory holds a half-written publication.

Examples:
  # Mirror everything that was published
  chainsnap distribute

  # Mirror testnet only, as JSON
  chainsnap distribute --network testnet -o json`)

var runCmd = newPipelineCmd(pipeline.ActionRun,
	"Publish, then distribute",
	`Run publish for every located node, then mirror each publication to the
enabled targets.

Stage order: locate, verify, preflight, stop, preclean, package, publish,
start, distribute.

Distribution runs after the node has been started again, so upload time
does not add to node downtime. A failed start is logged and distribution
still mirrors the new publication.

Exits with status 3 when publication succeeded but a target failed.

Examples:
  chainsnap run
  chainsnap run --network mainnet --config /etc/chainsnap/config.yaml`)

var restartCmd = newPipelineCmd(pipeline.ActionRestart,
	"Stop and start the node without snapshotting",
	`Stop every located node with the reload timeout and start it again, for
example after editing grin-server.toml. No archive is produced.

Examples:
  chainsnap restart --network testnet`)

func newPipelineCmd(action pipeline.Action, short, long string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   action.String(),
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(action)
		},
	}
	cmd.Flags().StringSliceVarP(&pipelineNetworks, "network", "n", nil, "Restrict to networks (mainnet, testnet)")
	cmd.Flags().StringVarP(&pipelineOutput, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}

func runPipeline(action pipeline.Action) error {
	format, err := output.ParseFormat(pipelineOutput)
	if err != nil {
		return err
	}
	networks, err := parseNetworks(pipelineNetworks)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	flush := initTelemetry(ctx, cfg)
	defer flush()
	initMetrics(cfg)

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	p, err := pipeline.Build(cfg, store, networks)
	if err != nil {
		return err
	}

	sum, runErr := p.Run(ctx, action)
	if err := output.Stdout(format).Print(summaryView{sum}); err != nil {
		logger.Warn("Failed to print summary", logger.KeyError, err)
	}
	if format == output.FormatTable {
		for _, r := range sum.Reports {
			fmt.Println()
			_ = output.PrintTable(os.Stdout, r)
		}
		if sum.LogPath != "" {
			fmt.Printf("\nRun log: %s\n", sum.LogPath)
		}
	}

	if code := sum.ExitCode(); code != pipeline.ExitOK {
		return &ExitError{Code: code, Err: runErr}
	}
	return nil
}

// summaryView renders a Summary as one row per network.
type summaryView struct {
	*pipeline.Summary
}

func (v summaryView) Headers() []string {
	return []string{"NETWORK", "RETENTION", "RESULT", "ARCHIVE", "SIZE", "DURATION", "ERROR"}
}

func (v summaryView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Runs))
	for _, r := range v.Runs {
		rows = append(rows, runRow(r))
	}
	return rows
}

func runRow(r history.Run) []string {
	network := r.Network
	if network == "" {
		network = "-"
	}
	size := "-"
	if r.ArchiveSize > 0 {
		size = bytesize.Of(r.ArchiveSize).String()
	}
	archive := r.ArchiveName
	if archive == "" {
		archive = "-"
	}
	return []string{
		network,
		orDash(r.Retention),
		string(r.Result),
		archive,
		size,
		timeutil.FormatDuration(r.Duration()),
		orDash(r.Error),
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
