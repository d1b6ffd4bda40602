package lifecycle

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// SessionManager runs the node detached from the calling terminal.
type SessionManager interface {
	// Kill terminates the named session; a missing session is not an error.
	Kill(ctx context.Context, name string) error
	// Launch starts argv in dir inside a new detached session.
	Launch(ctx context.Context, name, dir string, argv []string) error
}

// Tmux manages sessions with the tmux binary.
type Tmux struct {
	Binary string
}

func (t Tmux) bin() string {
	if t.Binary == "" {
		return "tmux"
	}
	return t.Binary
}

func (t Tmux) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, t.bin(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (t Tmux) Kill(ctx context.Context, name string) error {
	if err := exec.CommandContext(ctx, t.bin(), "has-session", "-t", "="+name).Run(); err != nil {
		return nil
	}
	return t.run(ctx, "kill-session", "-t", "="+name)
}

func (t Tmux) Launch(ctx context.Context, name, dir string, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command for session %s", name)
	}
	return t.run(ctx, "new-session", "-d", "-s", name, "-c", dir, ShellJoin(argv))
}

// ShellJoin quotes argv for a POSIX shell.
func ShellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = ShellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// ShellQuote wraps s in single quotes unless it is made only of safe characters.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
