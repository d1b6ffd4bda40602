package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Write a chainsnap configuration file holding every default value.

By default, the configuration file is created at $XDG_CONFIG_HOME/chainsnap/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  chainsnap config init

  # Initialize with custom path
  chainsnap config init --config /etc/chainsnap/config.yaml

  # Force overwrite existing config
  chainsnap config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s\nUse --force to overwrite it", configPath)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your remote mirrors under 'targets' and set enabled: true")
	fmt.Println("  2. Check the running nodes with: chainsnap locate")
	fmt.Println("  3. Publish once by hand with: chainsnap publish")
	fmt.Println("  4. Install the cron triggers with: chainsnap schedule install")
	return nil
}
