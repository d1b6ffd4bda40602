package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	runLogDir    = "runs"
	runLogExt    = ".log"
	runLogLayout = "20060102T150405Z"
)

// ErrNoRunLogs means the state directory holds no run logs yet.
var ErrNoRunLogs = errors.New("no run logs")

// RunLogDir returns the directory that holds per-run logs.
func RunLogDir(stateDir string) string {
	return filepath.Join(stateDir, runLogDir)
}

// RunLogPath returns <state>/runs/<UTC timestamp>_<action>_<run id>.log.
func RunLogPath(stateDir string, action Action, runID string, started time.Time) string {
	name := fmt.Sprintf("%s_%s_%s%s", started.UTC().Format(runLogLayout), action, runID, runLogExt)
	return filepath.Join(RunLogDir(stateDir), name)
}

// RunLogs lists the run logs oldest first. The timestamp prefix makes the
// lexical order chronological.
func RunLogs(stateDir string) ([]string, error) {
	entries, err := os.ReadDir(RunLogDir(stateDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), runLogExt) {
			out = append(out, filepath.Join(RunLogDir(stateDir), e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// LatestRunLog returns the newest run log, optionally restricted to runs
// whose file name contains match (an action or a run id).
func LatestRunLog(stateDir, match string) (string, error) {
	logs, err := RunLogs(stateDir)
	if err != nil {
		return "", err
	}
	for i := len(logs) - 1; i >= 0; i-- {
		if match == "" || strings.Contains(filepath.Base(logs[i]), match) {
			return logs[i], nil
		}
	}
	return "", ErrNoRunLogs
}
