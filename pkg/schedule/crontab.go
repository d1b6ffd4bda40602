package schedule

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Crontab reads and replaces the current user's crontab.
type Crontab interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, content string) error
}

// SystemCrontab shells out to crontab(1).
type SystemCrontab struct {
	// Binary defaults to "crontab".
	Binary string
}

func (c SystemCrontab) binary() string {
	if c.Binary == "" {
		return "crontab"
	}
	return c.Binary
}

// Read returns the crontab content. A user without a crontab reads as empty.
func (c SystemCrontab) Read(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary(), "-l")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(strings.ToLower(stderr.String()), "no crontab") {
			return "", nil
		}
		return "", fmt.Errorf("failed to execute %s -l: %s: %w", c.binary(), strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}

// Write installs content as the new crontab.
func (c SystemCrontab) Write(ctx context.Context, content string) error {
	cmd := exec.CommandContext(ctx, c.binary(), "-")
	cmd.Stdin = strings.NewReader(content)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to execute %s -: %s: %w", c.binary(), strings.TrimSpace(stderr.String()), err)
	}
	return nil
}
