package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/instance"
)

var (
	// ErrStopTimeout means the process outlived the stop timeout and force
	// kill was disabled or did not help.
	ErrStopTimeout = errors.New("instance did not stop within timeout")

	// ErrStartUnverified means the relaunched node did not open its admin
	// port in time. It is a warning: the run does not fail because of it.
	ErrStartUnverified = errors.New("restart could not be verified")
)

// Options tunes the controller's waits.
type Options struct {
	PollInterval  time.Duration
	ForceKill     bool
	KillGrace     time.Duration
	StartTimeout  time.Duration
	SessionPrefix string
}

// Controller stops and restarts one instance at a time.
type Controller struct {
	opts     Options
	signals  Signaller
	sessions SessionManager
	probe    PortProber
	machine  *Machine
}

// NewController creates a Controller. Nil collaborators use the real system.
func NewController(opts Options, signals Signaller, sessions SessionManager, probe PortProber) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.SessionPrefix == "" {
		opts.SessionPrefix = "grin"
	}
	if signals == nil {
		signals = UnixSignaller{}
	}
	if sessions == nil {
		sessions = Tmux{}
	}
	if probe == nil {
		probe = TCPProber{}
	}
	return &Controller{
		opts:     opts,
		signals:  signals,
		sessions: sessions,
		probe:    probe,
		machine:  NewMachine(Running),
	}
}

// State returns the controller's view of the instance.
func (c *Controller) State() State { return c.machine.State() }

// History returns the states visited so far.
func (c *Controller) History() []State { return c.machine.History() }

// SessionName is the deterministic session name for inst.
func SessionName(prefix string, inst instance.ServiceInstance) string {
	return fmt.Sprintf("%s-%s-%s", prefix, inst.Network, inst.Retention)
}

// SessionName returns the session Start will use for inst.
func (c *Controller) SessionName(inst instance.ServiceInstance) string {
	return SessionName(c.opts.SessionPrefix, inst)
}

// Stop sends SIGTERM and waits up to timeout for the process to exit. On
// timeout it escalates to SIGKILL when ForceKill is set. A context cancelled
// before SIGTERM leaves the process untouched; cancellation after it does not
// cut the wait short.
func (c *Controller) Stop(ctx context.Context, inst instance.ServiceInstance, timeout time.Duration) error {
	pid := int(inst.PID)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.machine.Transition(Stopping); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "stopping instance", logger.KeyPID, pid, logger.KeyTimeout, timeout)
	start := time.Now()

	err := c.signals.Signal(pid, syscall.SIGTERM)
	switch {
	case errors.Is(err, ErrProcessGone):
		return c.machine.Transition(Stopped)
	case err != nil:
		return err
	}

	// The node is going down; the bounded wait ignores cancellation.
	ctx = context.WithoutCancel(ctx)
	exited, err := c.waitExit(ctx, pid, timeout)
	if err != nil {
		return err
	}
	if exited {
		logger.InfoCtx(ctx, "instance stopped", logger.KeyPID, pid, logger.KeyDurationMs, logger.Duration(start))
		return c.machine.Transition(Stopped)
	}

	if !c.opts.ForceKill {
		logger.ErrorCtx(ctx, "instance did not stop, force kill disabled", logger.KeyPID, pid, logger.KeyTimeout, timeout)
		return fmt.Errorf("pid %d after %s: %w", pid, timeout, ErrStopTimeout)
	}

	if err := c.machine.Transition(ForceKilled); err != nil {
		return err
	}
	logger.WarnCtx(ctx, "graceful stop timed out, sending SIGKILL", logger.KeyPID, pid)
	if err := c.signals.Signal(pid, syscall.SIGKILL); err != nil && !errors.Is(err, ErrProcessGone) {
		return err
	}

	exited, err = c.waitExit(ctx, pid, c.opts.KillGrace)
	if err != nil {
		return err
	}
	if !exited {
		return fmt.Errorf("pid %d survived SIGKILL: %w", pid, ErrStopTimeout)
	}
	return c.machine.Transition(Stopped)
}

// waitExit polls liveness until the process is gone or timeout elapses.
func (c *Controller) waitExit(ctx context.Context, pid int, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		if !c.signals.Alive(pid) {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Start relaunches the original command line in a fresh detached session and
// waits for the admin port. A failed verification returns ErrStartUnverified.
func (c *Controller) Start(ctx context.Context, inst instance.ServiceInstance) error {
	if err := c.machine.Transition(Starting); err != nil {
		return err
	}

	name := c.SessionName(inst)
	if err := c.sessions.Kill(ctx, name); err != nil {
		logger.WarnCtx(ctx, "failed to clear previous session", logger.KeySession, name, logger.KeyError, err)
	}

	argv := append([]string{inst.BinaryPath}, inst.Args...)
	logger.InfoCtx(ctx, "starting instance", logger.KeySession, name, logger.KeyWorkDir, inst.WorkingDir)
	if err := c.sessions.Launch(ctx, name, inst.WorkingDir, argv); err != nil {
		return fmt.Errorf("%w: %v", ErrStartUnverified, err)
	}

	deadline := time.Now().Add(c.opts.StartTimeout)
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		if c.probe.Listening(ctx, inst.AdminPort) {
			logger.InfoCtx(ctx, "instance is back up", logger.KeySession, name, logger.KeyPort, inst.AdminPort)
			return c.machine.Transition(Running)
		}
		if !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStartUnverified, ctx.Err())
		case <-ticker.C:
		}
	}

	logger.ErrorCtx(ctx, "instance did not open its admin port after restart",
		logger.KeySession, name, logger.KeyPort, inst.AdminPort, logger.KeyTimeout, c.opts.StartTimeout)
	return fmt.Errorf("%s: admin port %d closed after %s: %w", name, inst.AdminPort, c.opts.StartTimeout, ErrStartUnverified)
}
