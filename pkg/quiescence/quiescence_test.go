package quiescence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/nodeapi"
)

type stubChannel struct {
	name   string
	state  State
	status string
	err    error
}

func (s stubChannel) Name() string { return s.name }

func (s stubChannel) Probe(context.Context, instance.ServiceInstance) (State, string, error) {
	return s.state, s.status, s.err
}

type scriptedRunner struct {
	outputs []string
	errs    []error
	calls   [][]string
	dirs    []string
}

func (r *scriptedRunner) Run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	i := len(r.calls)
	r.calls = append(r.calls, append([]string{name}, args...))
	r.dirs = append(r.dirs, dir)
	if i >= len(r.outputs) {
		i = len(r.outputs) - 1
	}
	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	return []byte(r.outputs[i]), err
}

var mainnet = instance.ServiceInstance{Network: instance.Mainnet, Retention: instance.Pruned, BinaryPath: "/bin/grin", WorkingDir: "/srv/grin/main"}

func TestParseStatusLine(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{name: "terminal line", output: "Connections: 8\nChain height: 10\nSync status: no_sync\n", want: "no_sync"},
		{name: "case insensitive", output: "SYNC STATUS: header_sync", want: "header_sync"},
		{name: "last line wins", output: "Sync status: body_sync\nSync status: no_sync", want: "no_sync"},
		{name: "missing", output: "Connections: 8\n", wantErr: true},
		{name: "empty state", output: "Sync status:   \n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatusLine(tt.output)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoStatusLine)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier()
	assert.Equal(t, Quiescent, c.Classify("no_sync"))
	assert.Equal(t, Quiescent, c.Classify(" NO_SYNC "))
	assert.Equal(t, Syncing, c.Classify("txhashset_download"))
	assert.Equal(t, Unknown, c.Classify(""))
}

func TestVerifier_ORCombination(t *testing.T) {
	tests := []struct {
		name     string
		channels []Channel
		wantErr  bool
	}{
		{
			name:     "api quiescent cli failing",
			channels: []Channel{stubChannel{name: "api", state: Quiescent}, stubChannel{name: "cli", err: errors.New("timeout")}},
		},
		{
			name:     "api down cli quiescent",
			channels: []Channel{stubChannel{name: "api", err: errors.New("refused")}, stubChannel{name: "cli", state: Quiescent}},
		},
		{
			name:     "both syncing",
			channels: []Channel{stubChannel{name: "api", state: Syncing}, stubChannel{name: "cli", state: Syncing}},
			wantErr:  true,
		},
		{
			name:     "both failing",
			channels: []Channel{stubChannel{name: "api", err: errors.New("x")}, stubChannel{name: "cli", err: errors.New("y")}},
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewVerifier(tt.channels...).Verify(context.Background(), mainnet)
			assert.Len(t, res.Channels, len(tt.channels))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotQuiescent)
				assert.False(t, res.Quiescent())
				return
			}
			require.NoError(t, err)
			assert.True(t, res.Quiescent())
		})
	}
}

func TestAPIChannel(t *testing.T) {
	ch := NewAPIChannel(time.Second, NewClassifier(), func(ctx context.Context, _ instance.ServiceInstance, _ time.Duration) (nodeapi.Status, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nodeapi.Status{SyncStatus: "no_sync"}, nil
	})

	state, status, err := ch.Probe(context.Background(), mainnet)
	require.NoError(t, err)
	assert.Equal(t, Quiescent, state)
	assert.Equal(t, "no_sync", status)
}

func TestCLIChannel_RetriesThenSucceeds(t *testing.T) {
	r := &scriptedRunner{
		outputs: []string{"", "Sync status: body_sync", "Sync status: no_sync"},
		errs:    []error{errors.New("connection refused")},
	}
	ch := NewCLIChannel(CLIOptions{Timeout: time.Second, Attempts: 3, Delay: time.Millisecond}, NewClassifier(), r)

	state, status, err := ch.Probe(context.Background(), mainnet)
	require.NoError(t, err)
	assert.Equal(t, Quiescent, state)
	assert.Equal(t, "no_sync", status)
	assert.Len(t, r.calls, 3)
	assert.Equal(t, []string{"/bin/grin", "client", "status"}, r.calls[0])
	assert.Equal(t, []string{"/srv/grin/main", "/srv/grin/main", "/srv/grin/main"}, r.dirs)
}

func TestCLIChannel_TestnetFlagAndExhaustion(t *testing.T) {
	r := &scriptedRunner{outputs: []string{"Sync status: header_sync"}}
	ch := NewCLIChannel(CLIOptions{Timeout: time.Second, Attempts: 2, Delay: time.Millisecond}, NewClassifier(), r)

	testnet := mainnet
	testnet.Network = instance.Testnet

	state, status, err := ch.Probe(context.Background(), testnet)
	require.NoError(t, err)
	assert.Equal(t, Syncing, state)
	assert.Equal(t, "header_sync", status)
	assert.Len(t, r.calls, 2)
	assert.Equal(t, []string{"/bin/grin", "--testnet", "client", "status"}, r.calls[0])
}

func TestCLIChannel_AllAttemptsFail(t *testing.T) {
	r := &scriptedRunner{outputs: []string{"garbage"}}
	ch := NewCLIChannel(CLIOptions{Timeout: time.Second, Attempts: 3, Delay: time.Millisecond}, NewClassifier(), r)

	state, _, err := ch.Probe(context.Background(), mainnet)
	assert.ErrorIs(t, err, ErrNoStatusLine)
	assert.Equal(t, Unknown, state)
	assert.Len(t, r.calls, 3)
}

func TestExecRunner_UsesNodeWorkingDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script node binary")
	}
	nodeDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(nodeDir, "grin-server.toml"), []byte("[server]\n"), 0o644))

	bin := filepath.Join(t.TempDir(), "grin")
	script := "#!/bin/sh\n[ -f ./grin-server.toml ] || { echo 'no config' >&2; exit 1; }\necho 'Sync status: no_sync'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	inst := mainnet
	inst.BinaryPath = bin
	inst.WorkingDir = nodeDir

	ch := NewCLIChannel(CLIOptions{Timeout: 5 * time.Second, Attempts: 1, Delay: time.Millisecond}, NewClassifier(), nil)
	state, status, err := ch.Probe(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, Quiescent, state)
	assert.Equal(t, "no_sync", status)
}
