package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/cli/output"
	"github.com/marmos91/chainsnap/pkg/pipeline"
	"github.com/marmos91/chainsnap/pkg/quiescence"
)

var (
	checkNetworks []string
	checkOutput   string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether each node is synced enough to snapshot",
	Long: `Query every located node over the owner API and the node's own status
command, and report whether it is quiescent. Nothing is stopped or written.

Exits with status 1 when any node is not quiescent.

Examples:
  chainsnap check
  chainsnap check --network mainnet -o json`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringSliceVarP(&checkNetworks, "network", "n", nil, "Restrict to networks (mainnet, testnet)")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type checkResult struct {
	Network   string            `json:"network" yaml:"network"`
	Quiescent bool              `json:"quiescent" yaml:"quiescent"`
	Result    quiescence.Result `json:"result" yaml:"result"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(checkOutput)
	if err != nil {
		return err
	}
	filter, err := parseNetworks(checkNetworks)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	found, _, err := pipeline.NewLocator(cfg).LocateAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to locate nodes: %w", err)
	}

	verifier := pipeline.NewVerifier(cfg)
	var results []checkResult
	for _, inst := range found {
		if !wantNetwork(filter, inst.Network) {
			continue
		}
		res, err := verifier.Verify(ctx, inst)
		if err != nil && !errors.Is(err, quiescence.ErrNotQuiescent) {
			return err
		}
		results = append(results, checkResult{Network: inst.Label(), Quiescent: res.Quiescent(), Result: res})
	}

	if format != output.FormatTable {
		if err := output.Stdout(format).Print(results); err != nil {
			return err
		}
	} else if len(results) == 0 {
		fmt.Println("No running node found.")
	} else {
		for i, r := range results {
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("%s: quiescent=%t\n", r.Network, r.Quiescent)
			if err := output.PrintTable(os.Stdout, r.Result); err != nil {
				return err
			}
		}
	}

	for _, r := range results {
		if !r.Quiescent {
			return &ExitError{Code: pipeline.ExitFatal, Err: fmt.Errorf("%s: %w", r.Network, quiescence.ErrNotQuiescent)}
		}
	}
	return nil
}
