// Package schedule implements the cron trigger subcommands.
package schedule

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/config"
	"github.com/marmos91/chainsnap/pkg/schedule"
)

// Cmd is the schedule subcommand.
var Cmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the cron triggers",
	Long: `Install, list and remove the crontab entries that run chainsnap
periodically. Each entry is tagged with its mode so other crontab lines are
never touched.

Two modes are scheduled independently:
  publish     snapshot and publish locally
  distribute  mirror completed publications to the targets

Subcommands:
  install  Add or replace triggers
  list     Show installed triggers
  remove   Delete triggers`,
}

func init() {
	Cmd.AddCommand(installCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(removeCmd)
}

// newManager loads the configuration and returns a crontab manager for the
// current user.
func newManager(cmd *cobra.Command) (*schedule.Manager, *config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	binary := cfg.Schedule.Binary
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return nil, nil, fmt.Errorf("failed to resolve executable: %w", err)
		}
	}

	// cron runs with a minimal environment, so pin the file actually used.
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}

	return schedule.NewManager(schedule.SystemCrontab{}, binary, configPath), cfg, nil
}

// parseModes maps the "all" shorthand and mode names.
func parseModes(arg string) ([]schedule.Mode, error) {
	if arg == "" || arg == "all" {
		return schedule.Modes(), nil
	}
	m, err := schedule.ParseMode(arg)
	if err != nil {
		return nil, err
	}
	return []schedule.Mode{m}, nil
}
