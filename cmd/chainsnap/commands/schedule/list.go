package schedule

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/cli/output"
	"github.com/marmos91/chainsnap/pkg/schedule"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show installed triggers",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type entryList []schedule.Entry

func (l entryList) Headers() []string { return []string{"MODE", "SCHEDULE", "COMMAND"} }

func (l entryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{string(e.Mode), e.Spec, e.Command})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listOutput)
	if err != nil {
		return err
	}
	mgr, _, err := newManager(cmd)
	if err != nil {
		return err
	}

	entries, err := mgr.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read crontab: %w", err)
	}
	if format == output.FormatTable && len(entries) == 0 {
		fmt.Println("No triggers installed.")
		return nil
	}
	return output.Stdout(format).Print(entryList(entries))
}
