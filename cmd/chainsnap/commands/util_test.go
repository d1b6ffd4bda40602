package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/chainsnap/pkg/history"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/pipeline"
)

func TestParseNetworks(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []instance.Network
		wantErr  bool
	}{
		{name: "empty", input: nil, expected: nil},
		{name: "node spelling", input: []string{"Mainnet", "floonet"}, expected: []instance.Network{instance.Mainnet, instance.Testnet}},
		{name: "unknown", input: []string{"regtest"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseNetworks(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseNetworks(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("parseNetworks(%v) = %v, want %v", tt.input, result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("parseNetworks(%v)[%d] = %q, want %q", tt.input, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestWantNetwork(t *testing.T) {
	if !wantNetwork(nil, instance.Testnet) {
		t.Error("empty filter should accept every network")
	}
	if wantNetwork([]instance.Network{instance.Mainnet}, instance.Testnet) {
		t.Error("mainnet filter should reject testnet")
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("mirror-1 unreachable")
	err := error(&ExitError{Code: pipeline.ExitPartial, Err: cause})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != pipeline.ExitPartial {
		t.Fatalf("errors.As did not recover the exit code from %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("ExitError should unwrap to its cause")
	}
	if got := (&ExitError{Code: 4}).Error(); got != "exit status 4" {
		t.Errorf("Error() = %q, want %q", got, "exit status 4")
	}
}

func TestExtractTimestamp(t *testing.T) {
	tests := []struct {
		name string
		line string
		want time.Time
	}{
		{
			name: "text format",
			line: "[2026-10-18 03:00:01.250] [INFO] run started run_id=abc",
			want: time.Date(2026, 10, 18, 3, 0, 1, 250e6, time.Local),
		},
		{
			name: "json format",
			line: `{"time":"2026-10-18T03:00:01.25Z","level":"INFO","msg":"run started"}`,
			want: time.Date(2026, 10, 18, 3, 0, 1, 250e6, time.UTC),
		},
		{
			name: "no timestamp",
			line: "plain output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTimestamp(tt.line)
			if !got.Equal(tt.want) {
				t.Errorf("extractTimestamp(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestSummaryViewRows(t *testing.T) {
	started := time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)
	sum := &pipeline.Summary{Runs: []history.Run{
		{
			Network:     "mainnet",
			Retention:   "pruned",
			Result:      history.ResultSuccess,
			ArchiveName: "grin_mainnet_pruned_2026-10-18.tar.gz",
			ArchiveSize: 2048,
			StartedAt:   started,
			FinishedAt:  started.Add(90 * time.Second),
		},
		{Result: history.ResultSkipped, StartedAt: started},
	}}

	rows := summaryView{sum}.Rows()
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0][5] != "1m 30s" {
		t.Errorf("duration = %q, want %q", rows[0][5], "1m 30s")
	}
	for i, cell := range []string{rows[1][0], rows[1][3], rows[1][4], rows[1][6]} {
		if cell != "-" {
			t.Errorf("skipped row cell %d = %q, want -", i, cell)
		}
	}
}

func TestRootRegistersCommands(t *testing.T) {
	want := []string{"publish", "distribute", "run", "restart", "locate", "check", "status", "verify", "history", "logs", "schedule", "config", "completion", "version"}
	for _, name := range want {
		cmd, _, err := GetRootCmd().Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestCompletesNetworkValues(t *testing.T) {
	root := GetRootCmd()
	registerValueCompletions(root)

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"__complete", "publish", "--network", ""})
	defer func() {
		root.SetOut(nil)
		root.SetArgs(nil)
	}()

	if err := root.Execute(); err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	for _, n := range []string{"mainnet", "testnet"} {
		if !strings.Contains(buf.String(), n) {
			t.Errorf("completion output %q lacks %s", buf.String(), n)
		}
	}
}

func TestRunHelpStatesStageOrder(t *testing.T) {
	if !strings.Contains(runCmd.Long, "publish,\nstart, distribute") {
		t.Errorf("run help does not say distribution follows start:\n%s", runCmd.Long)
	}
}
