package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/chainsnap/internal/bytesize"
	"github.com/marmos91/chainsnap/pkg/history"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/snapshot"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyStateDirDefaults(cfg)
	applyHistoryDefaults(&cfg.History)
	applyLocatorDefaults(&cfg.Locator)
	applyVerifierDefaults(&cfg.Verifier)
	applyLifecycleDefaults(&cfg.Lifecycle)
	applyPublicationDefaults(&cfg.Publication, cfg.StateDir)
	for i := range cfg.Targets {
		applyTargetDefaults(&cfg.Targets[i])
	}
	applyScheduleDefaults(&cfg.Schedule)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// defaultStateDir is $XDG_STATE_HOME/chainsnap or ~/.local/state/chainsnap.
func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "chainsnap")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "state", "chainsnap")
}

func applyStateDirDefaults(cfg *Config) {
	if cfg.StateDir == "" {
		cfg.StateDir = defaultStateDir()
	}
}

func applyHistoryDefaults(cfg *history.Config) {
	cfg.ApplyDefaults()
}

func applyLocatorDefaults(cfg *LocatorConfig) {
	if len(cfg.Ports) == 0 {
		for _, b := range instance.DefaultPorts() {
			cfg.Ports = append(cfg.Ports, PortConfig{Network: string(b.Network), Port: b.Port})
		}
	}
}

func applyVerifierDefaults(cfg *VerifierConfig) {
	if cfg.APITimeout == 0 {
		cfg.APITimeout = 5 * time.Second
	}
	if cfg.CLITimeout == 0 {
		cfg.CLITimeout = 15 * time.Second
	}
	if cfg.CLIAttempts == 0 {
		cfg.CLIAttempts = 3
	}
	if cfg.CLIDelay == 0 {
		cfg.CLIDelay = 5 * time.Second
	}
	if len(cfg.QuiescentStatuses) == 0 {
		cfg.QuiescentStatuses = []string{"no_sync"}
	}
}

func applyLifecycleDefaults(cfg *LifecycleConfig) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 180 * time.Second
	}
	if cfg.ReloadStopTimeout == 0 {
		cfg.ReloadStopTimeout = 30 * time.Second
	}
	if cfg.KillGrace == 0 {
		cfg.KillGrace = 10 * time.Second
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = 60 * time.Second
	}
	if cfg.SessionPrefix == "" {
		cfg.SessionPrefix = "grin"
	}
}

// applyPublicationDefaults stages archives under the state dir, outside the
// web root.
func applyPublicationDefaults(cfg *PublicationConfig, stateDir string) {
	if cfg.Root == "" {
		cfg.Root = "/var/www/snapshots"
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(stateDir, "staging")
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = "grin"
	}
	if cfg.FileMode == "" {
		cfg.FileMode = "0644"
	}
	if cfg.DirMode == "" {
		cfg.DirMode = "0755"
	}
	if cfg.Keep == 0 {
		cfg.Keep = 1
	}
	if cfg.TransientPatterns == nil {
		cfg.TransientPatterns = append([]string(nil), snapshot.DefaultTransientPatterns...)
	}
	if cfg.MinFreeSpace == 0 {
		cfg.MinFreeSpace = bytesize.ByteSize(bytesize.GiB)
	}
}

func applyTargetDefaults(cfg *TargetConfig) {
	switch cfg.Kind {
	case "ssh":
		if cfg.SSH.Port == 0 {
			cfg.SSH.Port = 22
		}
		if cfg.SSH.ConnectTimeout == 0 {
			cfg.SSH.ConnectTimeout = 15 * time.Second
		}
	}
}

func applyScheduleDefaults(cfg *ScheduleConfig) {
	if cfg.Publish == "" {
		cfg.Publish = "0 3 * * *"
	}
	if cfg.Distribute == "" {
		cfg.Distribute = "0 5 * * *"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		History: history.Config{
			Type: history.DatabaseTypeSQLite,
		},
		Telemetry: TelemetryConfig{
			Insecure: true,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
