package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/chainsnap/internal/bytesize"
	"github.com/marmos91/chainsnap/pkg/history"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_DefaultsApplied(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, `
logging:
  level: "info"

state_dir: "`+yamlSafePath(tmpDir)+`/state"

history:
  sqlite:
    path: "`+yamlSafePath(tmpDir)+`/history.db"

publication:
  root: "`+yamlSafePath(tmpDir)+`/www"
  min_free_space: 2Gi

lifecycle:
  stop_timeout: 5m
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Lifecycle.StopTimeout != 5*time.Minute {
		t.Errorf("Expected stop_timeout 5m, got %v", cfg.Lifecycle.StopTimeout)
	}
	if cfg.Lifecycle.ReloadStopTimeout != 30*time.Second {
		t.Errorf("Expected default reload_stop_timeout 30s, got %v", cfg.Lifecycle.ReloadStopTimeout)
	}
	if cfg.Publication.MinFreeSpace != bytesize.ByteSize(2*bytesize.GiB) {
		t.Errorf("Expected min_free_space 2Gi, got %v", cfg.Publication.MinFreeSpace)
	}
	if cfg.Publication.StagingDir != filepath.Join(cfg.StateDir, "staging") {
		t.Errorf("Expected staging dir under state dir, got %q", cfg.Publication.StagingDir)
	}
	if cfg.History.Type != history.DatabaseTypeSQLite {
		t.Errorf("Expected sqlite history, got %q", cfg.History.Type)
	}
	if len(cfg.Locator.Ports) != 2 || cfg.Locator.Ports[0].Port != 3413 || cfg.Locator.Ports[1].Port != 13413 {
		t.Errorf("Expected default ports 3413/13413, got %+v", cfg.Locator.Ports)
	}
}

func TestLoad_Targets(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, `
state_dir: "`+yamlSafePath(tmpDir)+`"
publication:
  root: "`+yamlSafePath(tmpDir)+`/www"
targets:
  - name: mirror-eu
    kind: ssh
    enabled: true
    ssh:
      host: eu.example.org
      user: snap
      key_path: /etc/chainsnap/id_ed25519
      known_hosts_path: /etc/chainsnap/known_hosts
      remote_dir: /srv/snapshots
  - name: bucket
    kind: s3
    enabled: false
    s3:
      bucket: grin-snapshots
      region: eu-west-1
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.Targets) != 2 {
		t.Fatalf("Expected 2 targets, got %d", len(cfg.Targets))
	}
	ssh := cfg.Targets[0]
	if ssh.SSH.Port != 22 || ssh.SSH.ConnectTimeout != 15*time.Second {
		t.Errorf("Expected ssh defaults port 22 / 15s, got %d / %v", ssh.SSH.Port, ssh.SSH.ConnectTimeout)
	}
	enabled := cfg.EnabledTargets()
	if len(enabled) != 1 || enabled[0].Name != "mirror-eu" {
		t.Errorf("Expected only mirror-eu enabled, got %+v", enabled)
	}
}

func TestLoad_InvalidTarget(t *testing.T) {
	configPath := writeConfig(t, `
targets:
  - name: mirror
    kind: ssh
    enabled: true
    ssh:
      host: eu.example.org
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for incomplete ssh target")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Verifier.CLIAttempts != 3 {
		t.Errorf("Expected default cli_attempts 3, got %d", cfg.Verifier.CLIAttempts)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("CHAINSNAP_LOGGING_LEVEL", "ERROR")
	t.Setenv("CHAINSNAP_LIFECYCLE_FORCE_KILL", "true")

	tmpDir := t.TempDir()
	configPath := writeConfig(t, `
logging:
  level: "INFO"
state_dir: "`+yamlSafePath(tmpDir)+`"
lifecycle:
  force_kill: false
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if !cfg.Lifecycle.ForceKill {
		t.Error("Expected force_kill true from env var")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	cfg := GetDefaultConfig()
	cfg.Targets = []TargetConfig{{
		Name: "bucket", Kind: "s3", Enabled: true,
		S3: S3TargetConfig{Bucket: "grin-snapshots"},
	}}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Lifecycle.StopTimeout != cfg.Lifecycle.StopTimeout {
		t.Errorf("Expected stop timeout %v, got %v", cfg.Lifecycle.StopTimeout, loaded.Lifecycle.StopTimeout)
	}
	if len(loaded.Targets) != 1 || loaded.Targets[0].S3.Bucket != "grin-snapshots" {
		t.Errorf("Expected s3 target to survive round trip, got %+v", loaded.Targets)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/etc/xdg-test")

	if got := GetDefaultConfigPath(); got != "/etc/xdg-test/chainsnap/config.yaml" {
		t.Errorf("Expected XDG config path, got %q", got)
	}
	if filepath.Base(GetConfigDir()) != "chainsnap" {
		t.Errorf("Expected directory name 'chainsnap', got %q", GetConfigDir())
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}
