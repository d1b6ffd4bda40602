// Package schedule installs and removes the periodic triggers that invoke
// the pipeline. Every managed crontab line carries a tag naming its mode, so
// entries owned by other tools are never touched.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/lifecycle"
)

const tagPrefix = "# chainsnap:"

var ErrUnknownMode = errors.New("unknown schedule mode")

// Mode is the invocation a trigger runs.
type Mode string

const (
	Publish    Mode = "publish"
	Distribute Mode = "distribute"
)

// Modes returns every schedulable mode.
func Modes() []Mode { return []Mode{Publish, Distribute} }

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Publish, Distribute:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Tag is the marker comment identifying lines owned for m.
func (m Mode) Tag() string { return tagPrefix + string(m) }

// Entry is one managed crontab line.
type Entry struct {
	Mode    Mode   `json:"mode" yaml:"mode"`
	Spec    string `json:"spec" yaml:"spec"`
	Command string `json:"command" yaml:"command"`
}

// Line renders the entry as a crontab line. cron turns a bare % in the
// command into a newline, so every % is written as \%.
func (e Entry) Line() string {
	return fmt.Sprintf("%s %s %s", e.Spec, strings.ReplaceAll(e.Command, "%", `\%`), e.Mode.Tag())
}

// ValidateSpec checks a standard five-field spec or an @descriptor.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// ParseLine extracts a managed entry from a crontab line. ok is false for
// comments, blank lines and lines without a known tag.
func ParseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Entry{}, false
	}
	idx := strings.LastIndex(line, tagPrefix)
	if idx < 0 {
		return Entry{}, false
	}
	mode, err := ParseMode(line[idx+len(tagPrefix):])
	if err != nil {
		return Entry{}, false
	}

	fields := strings.Fields(strings.TrimSpace(line[:idx]))
	n := 5
	if len(fields) > 0 && strings.HasPrefix(fields[0], "@") {
		n = 1
	}
	if len(fields) <= n {
		return Entry{}, false
	}
	return Entry{
		Mode:    mode,
		Spec:    strings.Join(fields[:n], " "),
		Command: strings.ReplaceAll(strings.Join(fields[n:], " "), `\%`, "%"),
	}, true
}

// Manager edits the crontab.
type Manager struct {
	tab        Crontab
	binary     string
	configPath string
}

// NewManager creates a Manager that schedules binary, passing configPath
// with --config when set.
func NewManager(tab Crontab, binary, configPath string) *Manager {
	if tab == nil {
		tab = SystemCrontab{}
	}
	return &Manager{tab: tab, binary: binary, configPath: configPath}
}

// Command returns the shell command a trigger for m runs.
func (m *Manager) Command(mode Mode) string {
	argv := []string{m.binary}
	if m.configPath != "" {
		argv = append(argv, "--config", m.configPath)
	}
	argv = append(argv, string(mode))
	return lifecycle.ShellJoin(argv) + " >/dev/null 2>&1"
}

// Install adds or replaces the trigger for mode.
func (m *Manager) Install(ctx context.Context, mode Mode, spec string) (Entry, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return Entry{}, err
	}
	if err := ValidateSpec(spec); err != nil {
		return Entry{}, err
	}

	content, err := m.tab.Read(ctx)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Mode: mode, Spec: spec, Command: m.Command(mode)}
	lines, replaced := without(content, mode)
	lines = append(lines, entry.Line())

	if err := m.tab.Write(ctx, join(lines)); err != nil {
		return Entry{}, err
	}
	logger.InfoCtx(ctx, "schedule installed", "mode", mode, "spec", spec, "replaced", replaced)
	return entry, nil
}

// Remove deletes the trigger for mode and returns how many lines it removed.
func (m *Manager) Remove(ctx context.Context, mode Mode) (int, error) {
	content, err := m.tab.Read(ctx)
	if err != nil {
		return 0, err
	}
	lines, removed := without(content, mode)
	if removed == 0 {
		return 0, nil
	}
	if err := m.tab.Write(ctx, join(lines)); err != nil {
		return 0, err
	}
	logger.InfoCtx(ctx, "schedule removed", "mode", mode, "lines", removed)
	return removed, nil
}

// List returns the managed entries in crontab order.
func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	content, err := m.tab.Read(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, line := range strings.Split(content, "\n") {
		if e, ok := ParseLine(line); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func without(content string, mode Mode) ([]string, int) {
	var (
		kept    []string
		removed int
	)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		if e, ok := ParseLine(line); ok && e.Mode == mode {
			removed++
			continue
		}
		if line == "" && len(kept) == 0 {
			continue
		}
		kept = append(kept, line)
	}
	return kept, removed
}

func join(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
