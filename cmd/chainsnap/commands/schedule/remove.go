package schedule

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/cli/prompt"
)

var removeForce bool

var removeCmd = &cobra.Command{
	Use:   "remove [publish|distribute|all]",
	Short: "Delete triggers",
	Long: `Remove the crontab entries chainsnap installed for a mode. Lines that
chainsnap did not install are left alone.

Examples:
  chainsnap schedule remove distribute
  chainsnap schedule remove all --force`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"publish", "distribute", "all"},
	RunE:      runRemove,
}

func init() {
	removeCmd.Flags().BoolVarP(&removeForce, "force", "f", false, "Skip confirmation prompt")
}

func runRemove(cmd *cobra.Command, args []string) error {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	modes, err := parseModes(arg)
	if err != nil {
		return err
	}

	label := "Remove every chainsnap trigger"
	if len(modes) == 1 {
		label = fmt.Sprintf("Remove the %s trigger", modes[0])
	}
	ok, err := prompt.ConfirmWithForce(label, removeForce)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
	}

	mgr, _, err := newManager(cmd)
	if err != nil {
		return err
	}
	for _, mode := range modes {
		n, err := mgr.Remove(cmd.Context(), mode)
		if err != nil {
			return fmt.Errorf("failed to remove %s trigger: %w", mode, err)
		}
		if n == 0 {
			fmt.Printf("No %s trigger installed.\n", mode)
			continue
		}
		fmt.Printf("Removed %s trigger.\n", mode)
	}
	return nil
}
