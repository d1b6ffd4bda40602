// Package sshtarget implements a distribution target reached over SSH with
// key-based authentication. File transfer and directory management are
// plain shell commands run on the remote host.
package sshtarget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/distribution"
	"github.com/marmos91/chainsnap/pkg/lifecycle"
)

const Kind = "ssh"

// Config describes one SSH target. Dir is already network-scoped.
type Config struct {
	Name           string
	Host           string
	Port           int
	User           string
	KeyPath        string
	KnownHostsPath string
	// InsecureHostKey skips host key verification when no known_hosts file
	// is configured.
	InsecureHostKey bool
	Dir             string
	Owner           string
	ConnectTimeout  time.Duration
}

// Executor runs a shell command on the remote host, feeding stdin when
// non-nil, and returns its stdout.
type Executor interface {
	Run(ctx context.Context, cmd string, stdin io.Reader) ([]byte, error)
	Close() error
}

// Dialer opens an Executor for cfg.
type Dialer func(ctx context.Context, cfg Config) (Executor, error)

// Target is a distribution.Target over SSH.
type Target struct {
	cfg  Config
	dial Dialer
	exec Executor
}

var _ distribution.Target = (*Target)(nil)

// New creates a Target. A nil dialer uses a real SSH connection.
func New(cfg Config, dial Dialer) *Target {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if dial == nil {
		dial = DialSSH
	}
	return &Target{cfg: cfg, dial: dial}
}

func (t *Target) Name() string { return t.cfg.Name }
func (t *Target) Kind() string { return Kind }

// Connect dials and authenticates, then runs a no-op command so that a
// broken remote shell fails here rather than mid-transfer.
func (t *Target) Connect(ctx context.Context) error {
	exec, err := t.dial(ctx, t.cfg)
	if err != nil {
		return err
	}
	if _, err := exec.Run(ctx, "true", nil); err != nil {
		_ = exec.Close()
		return fmt.Errorf("remote shell check failed: %w", err)
	}
	t.exec = exec
	logger.DebugCtx(ctx, "ssh target connected", logger.KeyHost, t.cfg.Host)
	return nil
}

func (t *Target) Close() error {
	if t.exec == nil {
		return nil
	}
	err := t.exec.Close()
	t.exec = nil
	return err
}

func (t *Target) run(ctx context.Context, cmd string, stdin io.Reader) ([]byte, error) {
	if t.exec == nil {
		return nil, errors.New("ssh target not connected")
	}
	return t.exec.Run(ctx, cmd, stdin)
}

func (t *Target) remote(name string) string {
	return path.Join(t.cfg.Dir, name)
}

func (t *Target) EnsureDir(ctx context.Context) error {
	_, err := t.run(ctx, "mkdir -p -- "+lifecycle.ShellQuote(t.cfg.Dir), nil)
	return err
}

func (t *Target) List(ctx context.Context) ([]string, error) {
	out, err := t.run(ctx, "ls -1A -- "+lifecycle.ShellQuote(t.cfg.Dir), nil)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasSuffix(line, ".partial") {
			names = append(names, line)
		}
	}
	return names, nil
}

// ReadFile returns nil for files that do not exist.
func (t *Target) ReadFile(ctx context.Context, name string) ([]byte, error) {
	return t.run(ctx, "cat -- "+lifecycle.ShellQuote(t.remote(name))+" 2>/dev/null || true", nil)
}

// Put streams r into a hidden partial file and renames it into place.
func (t *Target) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	partial := t.remote("." + name + ".partial")
	cmd := fmt.Sprintf("cat > %s && mv -f -- %s %s",
		lifecycle.ShellQuote(partial), lifecycle.ShellQuote(partial), lifecycle.ShellQuote(t.remote(name)))

	start := time.Now()
	if _, err := t.run(ctx, cmd, r); err != nil {
		_, _ = t.run(ctx, "rm -f -- "+lifecycle.ShellQuote(partial), nil)
		return err
	}
	logger.DebugCtx(ctx, "ssh upload complete",
		logger.KeyPath, t.remote(name), logger.KeySize, size, logger.KeyDurationMs, logger.Duration(start))
	return nil
}

func (t *Target) Remove(ctx context.Context, name string) error {
	_, err := t.run(ctx, "rm -f -- "+lifecycle.ShellQuote(t.remote(name)), nil)
	return err
}

// FixOwnership chowns the directory recursively. Without an owner it does
// nothing.
func (t *Target) FixOwnership(ctx context.Context) error {
	if t.cfg.Owner == "" {
		return nil
	}
	_, err := t.run(ctx, fmt.Sprintf("chown -R -- %s %s",
		lifecycle.ShellQuote(t.cfg.Owner), lifecycle.ShellQuote(t.cfg.Dir)), nil)
	return err
}

// ClientConfig builds the ssh.ClientConfig for cfg: public key auth from
// KeyPath and host key checking against KnownHostsPath.
func ClientConfig(cfg Config) (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", cfg.KeyPath, err)
	}

	var hostKey ssh.HostKeyCallback
	switch {
	case cfg.KnownHostsPath != "":
		hostKey, err = knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	case cfg.InsecureHostKey:
		hostKey = ssh.InsecureIgnoreHostKey()
	default:
		return nil, errors.New("no known_hosts file configured and insecure host key not allowed")
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKey,
		Timeout:         cfg.ConnectTimeout,
	}, nil
}

// DialSSH connects to cfg.Host honouring ctx for the TCP dial and handshake.
func DialSSH(ctx context.Context, cfg Config) (Executor, error) {
	clientCfg, err := ClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return &sessionExecutor{client: ssh.NewClient(c, chans, reqs)}, nil
}

type sessionExecutor struct {
	client *ssh.Client
}

func (e *sessionExecutor) Run(ctx context.Context, cmd string, stdin io.Reader) ([]byte, error) {
	sess, err := e.client.NewSession()
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if stdin != nil {
		sess.Stdin = stdin
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case err := <-done:
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return nil, fmt.Errorf("%s: %w: %s", firstWord(cmd), err, msg)
			}
			return nil, fmt.Errorf("%s: %w", firstWord(cmd), err)
		}
		return stdout.Bytes(), nil
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	}
}

func (e *sessionExecutor) Close() error {
	return e.client.Close()
}

func firstWord(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		return cmd[:i]
	}
	return cmd
}
