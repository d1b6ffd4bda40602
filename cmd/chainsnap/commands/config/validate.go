package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the chainsnap configuration file.

Checks for syntax errors, missing required fields, invalid values, malformed
targets and schedules.

Examples:
  # Validate default config
  chainsnap config validate

  # Validate specific config file
  chainsnap config validate --config /etc/chainsnap/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string

	enabled := cfg.EnabledTargets()
	if len(enabled) == 0 {
		warnings = append(warnings, "No enabled targets - distribute will only skip")
	}
	for _, t := range enabled {
		if t.Kind == "ssh" && t.SSH.InsecureHostKey {
			warnings = append(warnings, fmt.Sprintf("Target %q skips host key verification", t.Name))
		}
	}
	if _, err := os.Stat(cfg.Publication.Root); os.IsNotExist(err) {
		warnings = append(warnings, fmt.Sprintf("Publication root %s does not exist yet", cfg.Publication.Root))
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  State directory:  %s\n", cfg.StateDir)
	fmt.Printf("  Publication root: %s\n", cfg.Publication.Root)
	fmt.Printf("  History database: %s\n", cfg.History.Type)
	fmt.Printf("  Targets:          %d enabled of %d\n", len(enabled), len(cfg.Targets))
	fmt.Printf("  Publish schedule: %s\n", cfg.Schedule.Publish)
	fmt.Printf("  Mirror schedule:  %s\n", cfg.Schedule.Distribute)
	fmt.Printf("  Log level:        %s\n", cfg.Logging.Level)

	return nil
}
