package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/cli/output"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/pipeline"
	"github.com/marmos91/chainsnap/pkg/snapshot"
)

var (
	verifyNetworks []string
	verifyOutput   string
)

var verifyCmd = &cobra.Command{
	Use:   "verify [archive...]",
	Short: "Check archives against their SHA-256 sidecars",
	Long: `Recompute the SHA-256 digest of each archive and compare it with the
.sha256 file next to it. Without arguments every published archive is checked.

Exits with status 1 when any archive is missing its sidecar or does not match.

Examples:
  # Verify everything that is published
  chainsnap verify

  # Verify a downloaded archive
  chainsnap verify ./grin_mainnet_pruned_2026-10-18.tar.gz`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringSliceVarP(&verifyNetworks, "network", "n", nil, "Restrict to networks (mainnet, testnet)")
	verifyCmd.Flags().StringVarP(&verifyOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type verifyResult struct {
	Archive string `json:"archive" yaml:"archive"`
	SHA256  string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	OK      bool   `json:"ok" yaml:"ok"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

type verifyResults []verifyResult

func (r verifyResults) Headers() []string { return []string{"ARCHIVE", "RESULT", "SHA256"} }

func (r verifyResults) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, v := range r {
		result := "ok"
		if !v.OK {
			result = v.Error
		}
		rows = append(rows, []string{v.Archive, result, orDash(v.SHA256)})
	}
	return rows
}

func runVerify(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(verifyOutput)
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		if paths, err = publishedArchives(); err != nil {
			return err
		}
	}

	var results verifyResults
	failed := 0
	for _, p := range paths {
		digest, err := snapshot.Verify(p)
		res := verifyResult{Archive: p, SHA256: digest, OK: err == nil}
		if err != nil {
			res.Error = err.Error()
			failed++
		}
		results = append(results, res)
	}

	if format == output.FormatTable && len(results) == 0 {
		fmt.Println("No published archive found.")
		return nil
	}
	if format == output.FormatTable {
		if err := output.PrintTable(os.Stdout, results); err != nil {
			return err
		}
	} else if err := output.Stdout(format).Print(results); err != nil {
		return err
	}

	if failed > 0 {
		return &ExitError{Code: pipeline.ExitFatal, Err: fmt.Errorf("%d of %d archives failed verification", failed, len(results))}
	}
	return nil
}

// publishedArchives lists every archive in the configured publication
// directories.
func publishedArchives() ([]string, error) {
	filter, err := parseNetworks(verifyNetworks)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	pub, err := pipeline.NewPublisher(cfg)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, n := range instance.Networks() {
		if !wantNetwork(filter, n) {
			continue
		}
		entries, err := pub.Archives(n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		for _, e := range entries {
			paths = append(paths, filepath.Join(pub.Dir(n), e.Name))
		}
	}
	return paths, nil
}
