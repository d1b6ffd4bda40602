package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Signaller delivers signals to a process and checks whether it still exists.
type Signaller interface {
	Signal(pid int, sig syscall.Signal) error
	Alive(pid int) bool
}

// ErrProcessGone is returned by Signal when the process no longer exists.
var ErrProcessGone = errors.New("process already exited")

// UnixSignaller uses kill(2).
type UnixSignaller struct{}

func (UnixSignaller) Signal(pid int, sig syscall.Signal) error {
	err := unix.Kill(pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return ErrProcessGone
	}
	if err != nil {
		return fmt.Errorf("failed to send %s to %d: %w", unix.SignalName(sig), pid, err)
	}
	return nil
}

// Alive probes with signal 0. EPERM still means the process exists.
func (UnixSignaller) Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// PortProber checks whether the node's admin port accepts connections.
type PortProber interface {
	Listening(ctx context.Context, port int) bool
}

// TCPProber dials 127.0.0.1.
type TCPProber struct {
	DialTimeout time.Duration
}

func (p TCPProber) Listening(ctx context.Context, port int) bool {
	timeout := p.DialTimeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
