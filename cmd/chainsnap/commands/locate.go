package commands

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/cli/output"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/pipeline"
)

var locateOutput string

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Show the running nodes chainsnap would act on",
	Long: `Probe the configured admin ports and describe every node found: its
network, retention mode, process, data directory and config file.

Networks served by more than one process are listed as skipped.

Examples:
  chainsnap locate
  chainsnap locate -o json`,
	Args: cobra.NoArgs,
	RunE: runLocate,
}

func init() {
	locateCmd.Flags().StringVarP(&locateOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// instanceList renders located instances.
type instanceList []instance.ServiceInstance

func (l instanceList) Headers() []string {
	return []string{"NETWORK", "RETENTION", "PID", "PORT", "DATA DIR", "CONFIG"}
}

func (l instanceList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, i := range l {
		rows = append(rows, []string{
			string(i.Network),
			string(i.Retention),
			strconv.Itoa(int(i.PID)),
			strconv.Itoa(i.AdminPort),
			i.DataDir,
			orDash(i.ConfigPath),
		})
	}
	return rows
}

func runLocate(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(locateOutput)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	found, skipped, err := pipeline.NewLocator(cfg).LocateAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to locate nodes: %w", err)
	}

	if format != output.FormatTable {
		return output.Stdout(format).Print(struct {
			Instances []instance.ServiceInstance `json:"instances" yaml:"instances"`
			Skipped   map[string]string          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
		}{found, skippedReasons(skipped)})
	}

	if len(found) == 0 {
		fmt.Println("No running node found.")
	} else if err := output.PrintTable(os.Stdout, instanceList(found)); err != nil {
		return err
	}

	reasons := skippedReasons(skipped)
	networks := make([]string, 0, len(reasons))
	for n := range reasons {
		networks = append(networks, n)
	}
	sort.Strings(networks)
	printer := output.Stdout(format)
	for _, n := range networks {
		printer.Warning(fmt.Sprintf("skipped %s: %s", n, reasons[n]))
	}
	return nil
}

func skippedReasons(skipped map[instance.Network]error) map[string]string {
	if len(skipped) == 0 {
		return nil
	}
	out := make(map[string]string, len(skipped))
	for n, err := range skipped {
		out[string(n)] = err.Error()
	}
	return out
}
