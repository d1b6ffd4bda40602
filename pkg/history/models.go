package history

import "time"

// Result of a run.
type Result string

const (
	ResultSuccess Result = "success"
	ResultPartial Result = "partial"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
	ResultLocked  Result = "locked"
	ResultRunning Result = "running"
)

// Run is one pipeline invocation.
type Run struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	Action      string          `gorm:"not null;size:32;index" json:"action"`
	Network     string          `gorm:"size:16;index" json:"network,omitempty"`
	Retention   string          `gorm:"size:16" json:"retention,omitempty"`
	Result      Result          `gorm:"not null;size:16;index" json:"result"`
	Error       string          `gorm:"type:text" json:"error,omitempty"`
	ArchiveName string          `gorm:"size:255" json:"archive_name,omitempty"`
	ArchiveSize int64           `json:"archive_size,omitempty"`
	SHA256      string          `gorm:"size:64" json:"sha256,omitempty"`
	LogPath     string          `gorm:"size:1024" json:"log_path,omitempty"`
	StartedAt   time.Time       `gorm:"not null;index" json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Targets     []TargetOutcome `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"targets,omitempty"`
}

// TableName returns the table name for Run.
func (Run) TableName() string {
	return "runs"
}

// Duration of the run, zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// TargetOutcome is the distribution result for one target within a run.
type TargetOutcome struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	RunID      string `gorm:"not null;size:36;index" json:"-"`
	Target     string `gorm:"not null;size:255" json:"target"`
	Kind       string `gorm:"size:16" json:"kind"`
	Success    bool   `json:"success"`
	Uploaded   int    `json:"uploaded"`
	Pruned     int    `json:"pruned"`
	Error      string `gorm:"type:text" json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// TableName returns the table name for TargetOutcome.
func (TargetOutcome) TableName() string {
	return "target_outcomes"
}

// AllModels returns every model for migration.
func AllModels() []any {
	return []any{&Run{}, &TargetOutcome{}}
}
