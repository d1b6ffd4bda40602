package schedule

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/pkg/config"
	"github.com/marmos91/chainsnap/pkg/schedule"
)

var installSpec string

var installCmd = &cobra.Command{
	Use:   "install [publish|distribute|all]",
	Short: "Add or replace triggers",
	Long: `Install the crontab entry for a mode, replacing any previous entry for
that mode. The schedule comes from the configuration unless --spec is given.

Examples:
  # Install both triggers from the configured schedule
  chainsnap schedule install

  # Publish every six hours
  chainsnap schedule install publish --spec "0 */6 * * *"`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"publish", "distribute", "all"},
	RunE:      runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installSpec, "spec", "", "Cron spec overriding the configured one (single mode only)")
}

func runInstall(cmd *cobra.Command, args []string) error {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	modes, err := parseModes(arg)
	if err != nil {
		return err
	}
	if installSpec != "" && len(modes) > 1 {
		return fmt.Errorf("--spec needs a single mode")
	}

	mgr, cfg, err := newManager(cmd)
	if err != nil {
		return err
	}

	for _, mode := range modes {
		spec := installSpec
		if spec == "" {
			spec = configuredSpec(cfg, mode)
		}
		entry, err := mgr.Install(cmd.Context(), mode, spec)
		if err != nil {
			return fmt.Errorf("failed to install %s trigger: %w", mode, err)
		}
		fmt.Printf("Installed %s: %s\n", mode, entry.Line())
	}
	return nil
}

func configuredSpec(cfg *config.Config, mode schedule.Mode) string {
	if mode == schedule.Distribute {
		return cfg.Schedule.Distribute
	}
	return cfg.Schedule.Publish
}
