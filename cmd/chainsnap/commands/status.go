package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/internal/bytesize"
	"github.com/marmos91/chainsnap/internal/cli/output"
	"github.com/marmos91/chainsnap/internal/cli/timeutil"
	"github.com/marmos91/chainsnap/pkg/history"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/pipeline"
	"github.com/marmos91/chainsnap/pkg/publication"
)

var (
	statusNetworks []string
	statusOutput   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local publication state of each network",
	Long: `Show each network's status.json marker, its published archives and the
last successful run recorded in the history.

Examples:
  chainsnap status
  chainsnap status --network testnet -o yaml`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringSliceVarP(&statusNetworks, "network", "n", nil, "Restrict to networks (mainnet, testnet)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type networkStatus struct {
	Network     string              `json:"network" yaml:"network"`
	Dir         string              `json:"dir" yaml:"dir"`
	Marker      *publication.Marker `json:"marker,omitempty" yaml:"marker,omitempty"`
	Archives    []publication.Entry `json:"archives" yaml:"archives"`
	LastPublish *time.Time          `json:"last_publish,omitempty" yaml:"last_publish,omitempty"`
	LastMirror  *time.Time          `json:"last_distribute,omitempty" yaml:"last_distribute,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}
	filter, err := parseNetworks(statusNetworks)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	pub, err := pipeline.NewPublisher(cfg)
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var statuses []networkStatus
	for _, n := range instance.Networks() {
		if !wantNetwork(filter, n) {
			continue
		}
		st := networkStatus{Network: string(n), Dir: pub.Dir(n)}

		m, err := publication.ReadMarker(st.Dir)
		switch {
		case errors.Is(err, publication.ErrNoMarker):
		case err != nil:
			return fmt.Errorf("%s: %w", n, err)
		default:
			st.Marker = &m
		}

		if st.Archives, err = pub.Archives(n); err != nil {
			return fmt.Errorf("%s: %w", n, err)
		}

		st.LastPublish, err = lastSuccess(ctx, store, pipeline.ActionPublish, n)
		if err != nil {
			return err
		}
		st.LastMirror, err = lastSuccess(ctx, store, pipeline.ActionDistribute, n)
		if err != nil {
			return err
		}
		statuses = append(statuses, st)
	}

	if format != output.FormatTable {
		return output.Stdout(format).Print(statuses)
	}

	now := time.Now()
	for i, st := range statuses {
		if i > 0 {
			fmt.Println()
		}
		state, updated, message := "never published", "-", "-"
		if st.Marker != nil {
			state = string(st.Marker.State)
			updated = timeutil.Age(st.Marker.UpdatedAt, now)
			message = st.Marker.Message
		}
		pairs := [][2]string{
			{"Network", st.Network},
			{"Directory", st.Dir},
			{"State", state},
			{"Updated", updated},
			{"Message", message},
			{"Last publish", ageOf(st.LastPublish, now)},
			{"Last distribute", ageOf(st.LastMirror, now)},
		}
		if err := output.PrintKeyValues(os.Stdout, pairs); err != nil {
			return err
		}
		if len(st.Archives) == 0 {
			continue
		}
		fmt.Println()
		table := output.NewTable("ARCHIVE", "RETENTION", "SIZE", "AGE", "CHECKSUM")
		for _, a := range st.Archives {
			checksum := "missing"
			if a.HasChecksum {
				checksum = "ok"
			}
			table.AddRow(a.Name, string(a.Retention), bytesize.Of(a.SizeBytes).String(), timeutil.Age(a.ModTime, now), checksum)
		}
		if err := output.PrintTable(os.Stdout, table); err != nil {
			return err
		}
	}
	return nil
}

// lastSuccess returns when action last succeeded for n, or nil.
func lastSuccess(ctx context.Context, store *history.Store, action pipeline.Action, n instance.Network) (*time.Time, error) {
	run, err := store.LastSuccess(ctx, action.String(), string(n))
	if errors.Is(err, history.ErrRunNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := run.StartedAt
	return &t, nil
}

func ageOf(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return timeutil.Age(*t, now)
}
