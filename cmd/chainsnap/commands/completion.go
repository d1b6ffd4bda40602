package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/cli/output"
	"github.com/marmos91/chainsnap/pkg/instance"
)

var completionCmd = &cobra.Command{
	Use:   "completion <bash|zsh|fish>",
	Short: "Print a shell completion script",
	Long: `Print a completion script for the shell that drives chainsnap on the
snapshot host. Completion covers subcommands, flags and the values of
--network and --output.

Install it once for the operator account that owns the crontab:

  # bash, system wide
  chainsnap completion bash | sudo tee /etc/bash_completion.d/chainsnap >/dev/null

  # bash, current session only
  source <(chainsnap completion bash)

  # zsh (compinit must already be enabled)
  chainsnap completion zsh > "${fpath[1]}/_chainsnap"

  # fish
  chainsnap completion fish > ~/.config/fish/completions/chainsnap.fish

Open a new shell afterwards.`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		switch args[0] {
		case "zsh":
			return root.GenZshCompletion(os.Stdout)
		case "fish":
			return root.GenFishCompletion(os.Stdout, true)
		default:
			return root.GenBashCompletionV2(os.Stdout, true)
		}
	},
}

// registerValueCompletions completes --network and --output on every command
// that defines them.
func registerValueCompletions(cmd *cobra.Command) {
	if cmd.Flags().Lookup("network") != nil {
		_ = cmd.RegisterFlagCompletionFunc("network", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			var names []string
			for _, n := range instance.Networks() {
				names = append(names, string(n))
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		})
	}
	if f := cmd.Flags().Lookup("output"); f != nil && f.Shorthand == "o" && f.DefValue == string(output.FormatTable) {
		_ = cmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(
			[]string{string(output.FormatTable), string(output.FormatJSON), string(output.FormatYAML)},
			cobra.ShellCompDirectiveNoFileComp))
	}
	for _, sub := range cmd.Commands() {
		registerValueCompletions(sub)
	}
}
