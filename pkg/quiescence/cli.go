package quiescence

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/instance"
)

// ErrNoStatusLine is returned when the CLI output has no sync status line.
var ErrNoStatusLine = errors.New("no sync status line in output")

const statusPrefix = "sync status:"

// ParseStatusLine extracts the state from the last "Sync status: <state>"
// line of the diagnostic command's output.
func ParseStatusLine(output string) (string, error) {
	var state string
	found := false

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) < len(statusPrefix) || !strings.EqualFold(line[:len(statusPrefix)], statusPrefix) {
			continue
		}
		state = strings.TrimSpace(line[len(statusPrefix):])
		found = true
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if !found || state == "" {
		return "", ErrNoStatusLine
	}
	return state, nil
}

// CommandRunner runs a subprocess in dir and returns its combined output.
// The node CLI resolves grin-server.toml and .api_secret from its working
// directory, so dir is the instance's working directory.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out.Bytes(), nil
}

// CLIOptions bounds the diagnostic command.
type CLIOptions struct {
	Timeout  time.Duration
	Attempts int
	Delay    time.Duration
}

// CLIChannel runs "<binary> [--testnet] client status".
type CLIChannel struct {
	opts     CLIOptions
	classify Classifier
	runner   CommandRunner
}

// NewCLIChannel creates the diagnostic CLI channel. A nil runner uses os/exec.
func NewCLIChannel(opts CLIOptions, classify Classifier, runner CommandRunner) *CLIChannel {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &CLIChannel{opts: opts, classify: classify, runner: runner}
}

func (c *CLIChannel) Name() string { return "cli" }

// Probe retries with a fixed delay until the node reports quiescence or the
// attempts run out; the last answer wins.
func (c *CLIChannel) Probe(ctx context.Context, inst instance.ServiceInstance) (State, string, error) {
	args := []string{"client", "status"}
	if inst.IsTestnet() {
		args = append([]string{"--testnet"}, args...)
	}

	var (
		state  = Unknown
		status string
		n      int
	)
	op := func() error {
		n++
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		out, err := c.runner.Run(attemptCtx, inst.WorkingDir, inst.BinaryPath, args...)
		if err != nil {
			state, status = Unknown, ""
			logger.DebugCtx(ctx, "status command failed", logger.KeyAttempt, n, logger.KeyError, err)
			return err
		}
		s, err := ParseStatusLine(string(out))
		if err != nil {
			state, status = Unknown, ""
			return err
		}
		state, status = c.classify.Classify(s), s
		if state != Quiescent {
			return fmt.Errorf("sync status %q", s)
		}
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.Delay), uint64(c.opts.Attempts-1)),
		ctx,
	)
	err := backoff.Retry(op, b)
	if state == Syncing {
		return state, status, nil
	}
	return state, status, err
}
