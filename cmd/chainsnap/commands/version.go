package commands

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/cli/output"
)

var (
	versionShort  bool
	versionOutput string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the chainsnap build",
	Long: `Print the chainsnap release, the commit and build date it was made from,
and the platform it runs on. Include this output when reporting a failed run.

Examples:
  chainsnap version
  chainsnap version --short
  chainsnap version -o json`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the release")
	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type buildInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuiltAt   string `json:"built_at" yaml:"built_at"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func currentBuild() buildInfo {
	return buildInfo{
		Version:   Version,
		Commit:    Commit,
		BuiltAt:   Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func runVersion(cmd *cobra.Command, args []string) error {
	if versionShort {
		fmt.Println(Version)
		return nil
	}
	format, err := output.ParseFormat(versionOutput)
	if err != nil {
		return err
	}

	b := currentBuild()
	if format != output.FormatTable {
		return output.Stdout(format).Print(b)
	}
	return output.PrintKeyValues(os.Stdout, [][2]string{
		{"chainsnap", b.Version},
		{"Commit", b.Commit},
		{"Built", b.BuiltAt},
		{"Go", b.GoVersion},
		{"Platform", b.Platform},
	})
}
