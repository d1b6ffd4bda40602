package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/cli/output"
	"github.com/marmos91/chainsnap/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective chainsnap configuration, defaults and environment
overrides included.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show default config as YAML
  chainsnap config show

  # Show as JSON
  chainsnap config show --output json

  # Show specific config file
  chainsnap config show --config /etc/chainsnap/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		format = output.FormatYAML
	}

	return output.NewPrinter(os.Stdout, format, false).Print(cfg)
}
