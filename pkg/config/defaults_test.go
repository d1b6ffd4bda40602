package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Verifier(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Verifier.APITimeout != 5*time.Second {
		t.Errorf("Expected api_timeout 5s, got %v", cfg.Verifier.APITimeout)
	}
	if cfg.Verifier.CLITimeout != 15*time.Second {
		t.Errorf("Expected cli_timeout 15s, got %v", cfg.Verifier.CLITimeout)
	}
	if cfg.Verifier.CLIDelay != 5*time.Second {
		t.Errorf("Expected cli_delay 5s, got %v", cfg.Verifier.CLIDelay)
	}
	if len(cfg.Verifier.QuiescentStatuses) != 1 || cfg.Verifier.QuiescentStatuses[0] != "no_sync" {
		t.Errorf("Expected quiescent statuses [no_sync], got %v", cfg.Verifier.QuiescentStatuses)
	}
}

func TestApplyDefaults_Lifecycle(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Lifecycle.StopTimeout != 180*time.Second {
		t.Errorf("Expected stop_timeout 180s, got %v", cfg.Lifecycle.StopTimeout)
	}
	if cfg.Lifecycle.ForceKill {
		t.Error("Expected force_kill to default to false")
	}
	if cfg.Lifecycle.SessionPrefix != "grin" {
		t.Errorf("Expected session prefix 'grin', got %q", cfg.Lifecycle.SessionPrefix)
	}
}

func TestApplyDefaults_Publication(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Publication.Keep != 1 {
		t.Errorf("Expected keep 1, got %d", cfg.Publication.Keep)
	}
	if cfg.Publication.FileMode != "0644" || cfg.Publication.DirMode != "0755" {
		t.Errorf("Expected modes 0644/0755, got %s/%s", cfg.Publication.FileMode, cfg.Publication.DirMode)
	}
	if len(cfg.Publication.TransientPatterns) == 0 {
		t.Error("Expected default transient patterns")
	}
}

func TestApplyDefaults_StagingOutsideWebRoot(t *testing.T) {
	cfg := &Config{
		StateDir:    "/var/lib/chainsnap",
		Publication: PublicationConfig{Root: "/var/www/snapshots"},
	}
	ApplyDefaults(cfg)

	if cfg.Publication.StagingDir != "/var/lib/chainsnap/staging" {
		t.Errorf("Expected staging dir under state dir, got %q", cfg.Publication.StagingDir)
	}
	rel, err := filepath.Rel(cfg.Publication.Root, cfg.Publication.StagingDir)
	if err == nil && !strings.HasPrefix(rel, "..") {
		t.Errorf("Staging dir %q is served from %q", cfg.Publication.StagingDir, cfg.Publication.Root)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Verifier:    VerifierConfig{CLIAttempts: 7},
		Publication: PublicationConfig{Root: "/srv/www", StagingDir: "/srv/staging", Keep: 3},
		Schedule:    ScheduleConfig{Publish: "@daily"},
	}
	ApplyDefaults(cfg)

	if cfg.Verifier.CLIAttempts != 7 {
		t.Errorf("Expected cli_attempts preserved, got %d", cfg.Verifier.CLIAttempts)
	}
	if cfg.Publication.StagingDir != "/srv/staging" || cfg.Publication.Keep != 3 {
		t.Errorf("Expected publication values preserved, got %+v", cfg.Publication)
	}
	if cfg.Schedule.Publish != "@daily" || cfg.Schedule.Distribute != "0 5 * * *" {
		t.Errorf("Unexpected schedule %+v", cfg.Schedule)
	}
}
