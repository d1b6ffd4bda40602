package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/cli/prompt"
	"github.com/marmos91/chainsnap/pkg/config"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit config.yaml and re-validate it",
	Long: `Open config.yaml in $VISUAL or $EDITOR (vi when neither is set). When the
editor exits the file is loaded exactly as the scheduled publish and
distribute runs load it; if that fails you are offered to reopen it so a
broken file is not left for the next cron trigger.

Examples:
  # Edit the operator's config
  chainsnap config edit

  # Edit the system config used by the crontab entries
  sudo -E chainsnap config edit --config /etc/chainsnap/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigEdit,
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("no configuration at %s, run 'chainsnap config init --config %s' first", configPath, configPath)
	}

	for {
		if err := openEditor(configPath); err != nil {
			return err
		}
		_, loadErr := config.Load(configPath)
		if loadErr == nil {
			fmt.Printf("%s is valid\n", configPath)
			return nil
		}

		fmt.Fprintf(os.Stderr, "%s is invalid: %v\n", configPath, loadErr)
		again, err := prompt.Confirm("Reopen the editor", true)
		if err != nil {
			return err
		}
		if !again {
			return fmt.Errorf("edited configuration is invalid: %w", loadErr)
		}
	}
}

func editorCommand() []string {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if fields := strings.Fields(os.Getenv(env)); len(fields) > 0 {
			return fields
		}
	}
	return []string{"vi"}
}

func openEditor(path string) error {
	argv := append(editorCommand(), path)
	c := exec.Command(argv[0], argv[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor %s failed: %w", argv[0], err)
	}
	return nil
}
