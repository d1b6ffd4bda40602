package instance

import (
	"context"
	"fmt"
	"os/user"

	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is what the locator needs to know about a listening process.
type ProcessInfo struct {
	PID     int32
	Exe     string
	Cmdline []string
	Cwd     string
	HomeDir string
}

// ProcessTable resolves listening ports to processes.
type ProcessTable interface {
	// ListenerPID returns the pid owning a TCP socket in LISTEN state on port,
	// or 0 when nothing listens there.
	ListenerPID(ctx context.Context, port int) (int32, error)
	Describe(ctx context.Context, pid int32) (ProcessInfo, error)
}

// SystemProcessTable reads the live process table through gopsutil.
type SystemProcessTable struct{}

func (SystemProcessTable) ListenerPID(ctx context.Context, port int) (int32, error) {
	conns, err := net.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return 0, fmt.Errorf("failed to list sockets: %w", err)
	}
	for _, c := range conns {
		if c.Status == "LISTEN" && c.Laddr.Port == uint32(port) && c.Pid > 0 {
			return c.Pid, nil
		}
	}
	return 0, nil
}

func (SystemProcessTable) Describe(ctx context.Context, pid int32) (ProcessInfo, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ProcessInfo{}, fmt.Errorf("process %d: %w", pid, err)
	}

	info := ProcessInfo{PID: pid}
	if info.Exe, err = p.ExeWithContext(ctx); err != nil {
		return ProcessInfo{}, fmt.Errorf("process %d: failed to resolve executable: %w", pid, err)
	}
	if info.Cmdline, err = p.CmdlineSliceWithContext(ctx); err != nil {
		return ProcessInfo{}, fmt.Errorf("process %d: failed to read command line: %w", pid, err)
	}
	if info.Cwd, err = p.CwdWithContext(ctx); err != nil {
		return ProcessInfo{}, fmt.Errorf("process %d: failed to resolve working directory: %w", pid, err)
	}

	if name, err := p.UsernameWithContext(ctx); err == nil {
		if u, err := user.Lookup(name); err == nil {
			info.HomeDir = u.HomeDir
		}
	}
	return info, nil
}
