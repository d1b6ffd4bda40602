package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/chainsnap/internal/logger"
)

// Locator finds running instances by their admin API ports.
type Locator struct {
	ports        []PortBinding
	extraConfigs []string
	procs        ProcessTable
}

// NewLocator creates a Locator. extraConfigs are searched after the
// conventional locations. A nil table uses the live system.
func NewLocator(ports []PortBinding, extraConfigs []string, procs ProcessTable) *Locator {
	if len(ports) == 0 {
		ports = DefaultPorts()
	}
	if procs == nil {
		procs = SystemProcessTable{}
	}
	return &Locator{ports: ports, extraConfigs: extraConfigs, procs: procs}
}

// Locate classifies the instance listening on b.Port. It returns ErrNotFound
// when the port is free.
func (l *Locator) Locate(ctx context.Context, b PortBinding) (ServiceInstance, error) {
	pid, err := l.procs.ListenerPID(ctx, b.Port)
	if err != nil {
		return ServiceInstance{}, err
	}
	if pid == 0 {
		return ServiceInstance{}, fmt.Errorf("port %d: %w", b.Port, ErrNotFound)
	}

	info, err := l.procs.Describe(ctx, pid)
	if err != nil {
		return ServiceInstance{}, err
	}

	inst := ServiceInstance{
		Network:       b.Network,
		Retention:     Pruned,
		PID:           pid,
		BinaryPath:    info.Exe,
		WorkingDir:    info.Cwd,
		AdminPort:     b.Port,
		DataDir:       filepath.Join(info.Cwd, "chain_data"),
		APISecretPath: filepath.Join(info.Cwd, ".api_secret"),
	}
	if len(info.Cmdline) > 1 {
		inst.Args = append([]string(nil), info.Cmdline[1:]...)
	}

	path := l.findConfig(b.Network, info)
	if path == "" {
		logger.DebugCtx(ctx, "no node config found, using defaults", logger.KeyPID, pid, logger.KeyPort, b.Port)
		return inst, nil
	}

	cfg, err := LoadNodeConfig(path)
	if err != nil {
		return ServiceInstance{}, err
	}
	inst.ConfigPath = path
	inst.Retention = RetentionFor(cfg.ArchiveMode)
	inst.P2PPort = cfg.P2PPort
	if cfg.DBRoot != "" {
		inst.DataDir = cfg.DBRoot
	}
	if cfg.APISecretPath != "" {
		inst.APISecretPath = cfg.APISecretPath
	}

	if cfg.ChainType != "" {
		n, err := ParseNetwork(cfg.ChainType)
		if err != nil {
			logger.WarnCtx(ctx, "unrecognised chain_type, using port network",
				logger.KeyPath, path, logger.KeyNetwork, b.Network, logger.KeyError, err)
		} else {
			inst.Network = n
		}
	}
	return inst, nil
}

// configCandidates lists where a node keeps its config, most specific first.
func (l *Locator) configCandidates(n Network, info ProcessInfo) []string {
	var out []string
	if info.Cwd != "" {
		out = append(out, filepath.Join(info.Cwd, ConfigFileName))
	}
	if info.HomeDir != "" {
		sub := "main"
		if n == Testnet {
			sub = "test"
		}
		out = append(out, filepath.Join(info.HomeDir, ".grin", sub, ConfigFileName))
	}
	return append(out, l.extraConfigs...)
}

func (l *Locator) findConfig(n Network, info ProcessInfo) string {
	for _, p := range l.configCandidates(n, info) {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// LocateAll probes every configured port. Networks claimed by more than one
// instance are dropped and reported in skipped with ErrAmbiguous.
func (l *Locator) LocateAll(ctx context.Context) (found []ServiceInstance, skipped map[Network]error, err error) {
	byNetwork := make(map[Network][]ServiceInstance)
	var order []Network

	for _, b := range l.ports {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		inst, err := l.Locate(ctx, b)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if _, seen := byNetwork[inst.Network]; !seen {
			order = append(order, inst.Network)
		}
		byNetwork[inst.Network] = append(byNetwork[inst.Network], inst)
	}

	skipped = make(map[Network]error)
	for _, n := range order {
		insts := byNetwork[n]
		if len(insts) > 1 {
			skipped[n] = fmt.Errorf("%s on ports %d and %d: %w", n, insts[0].AdminPort, insts[1].AdminPort, ErrAmbiguous)
			continue
		}
		found = append(found, insts[0])
	}
	return found, skipped, nil
}

// Find returns the single instance serving n.
func (l *Locator) Find(ctx context.Context, n Network) (ServiceInstance, error) {
	found, skipped, err := l.LocateAll(ctx)
	if err != nil {
		return ServiceInstance{}, err
	}
	if err := skipped[n]; err != nil {
		return ServiceInstance{}, err
	}
	for _, inst := range found {
		if inst.Network == n {
			return inst, nil
		}
	}
	return ServiceInstance{}, fmt.Errorf("%s: %w", n, ErrNotFound)
}
