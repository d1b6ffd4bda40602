package pipeline

import (
	"errors"
	"time"

	"github.com/marmos91/chainsnap/pkg/distribution"
	"github.com/marmos91/chainsnap/pkg/history"
	"github.com/marmos91/chainsnap/pkg/snapshot"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 3
	ExitLocked  = 4
)

// Summary describes one invocation.
type Summary struct {
	RunID     string                `json:"run_id"`
	Action    Action                `json:"action"`
	StartedAt time.Time             `json:"started_at"`
	LogPath   string                `json:"log_path,omitempty"`
	Runs      []history.Run         `json:"runs"`
	Artifacts []snapshot.Artifact   `json:"artifacts,omitempty"`
	Reports   []distribution.Report `json:"reports,omitempty"`
	Err       error                 `json:"-"`
}

// Partial reports whether at least one remote target failed.
func (s *Summary) Partial() bool {
	for _, r := range s.Reports {
		if len(r.Failed()) > 0 {
			return true
		}
	}
	return false
}

// Result folds the invocation into one history result.
func (s *Summary) Result() history.Result {
	switch {
	case errors.Is(s.Err, ErrLocked):
		return history.ResultLocked
	case s.Err != nil:
		return history.ResultFailed
	case s.Partial():
		return history.ResultPartial
	}
	for _, r := range s.Runs {
		if r.Result != history.ResultSkipped {
			return history.ResultSuccess
		}
	}
	return history.ResultSkipped
}

// ExitCode maps the invocation to the process exit status.
func (s *Summary) ExitCode() int {
	switch s.Result() {
	case history.ResultLocked:
		return ExitLocked
	case history.ResultFailed:
		return ExitFatal
	case history.ResultPartial:
		return ExitPartial
	default:
		return ExitOK
	}
}
