package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/chainsnap/internal/bytesize"
	"github.com/marmos91/chainsnap/pkg/history"
)

// Config represents the chainsnap configuration.
//
// It covers every stage of the snapshot pipeline:
//   - Logging, tracing and metrics
//   - Run history database
//   - Instance discovery and quiescence verification
//   - Node stop/start behaviour
//   - Packaging and local publication
//   - Remote distribution targets
//   - Scheduled triggers
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (CHAINSNAP_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls the Prometheus textfile export
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// History configures the run history database (SQLite or PostgreSQL)
	History history.Config `mapstructure:"history" yaml:"history"`

	// StateDir holds the run lock and the per-run log files
	StateDir string `mapstructure:"state_dir" validate:"required" yaml:"state_dir"`

	Locator     LocatorConfig     `mapstructure:"locator" yaml:"locator"`
	Verifier    VerifierConfig    `mapstructure:"verifier" yaml:"verifier"`
	Lifecycle   LifecycleConfig   `mapstructure:"lifecycle" yaml:"lifecycle"`
	Publication PublicationConfig `mapstructure:"publication" yaml:"publication"`

	// Targets are the remote mirrors, tried in order
	Targets []TargetConfig `mapstructure:"targets" validate:"dive" yaml:"targets"`

	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// Each run becomes one trace with a span per stage and per target.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig configures the Prometheus textfile export.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// TextfilePath is where the registry is written after each run,
	// typically inside node_exporter's textfile collector directory.
	TextfilePath string `mapstructure:"textfile_path" validate:"required_if=Enabled true" yaml:"textfile_path"`
}

// PortConfig binds an admin API port to the network it conventionally serves.
type PortConfig struct {
	Network string `mapstructure:"network" validate:"required,oneof=mainnet testnet" yaml:"network"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`
}

// LocatorConfig controls instance discovery.
type LocatorConfig struct {
	// Ports are probed in order. Default: mainnet 3413, testnet 13413
	Ports []PortConfig `mapstructure:"ports" validate:"dive" yaml:"ports"`

	// ConfigCandidates are extra grin-server.toml paths tried after the
	// working directory and the home directory defaults.
	ConfigCandidates []string `mapstructure:"config_candidates" yaml:"config_candidates,omitempty"`
}

// VerifierConfig controls the quiescence checks.
type VerifierConfig struct {
	// APITimeout bounds the owner API get_status call
	// Default: 5s
	APITimeout time.Duration `mapstructure:"api_timeout" validate:"gt=0" yaml:"api_timeout"`

	// CLITimeout bounds each "grin client status" invocation
	// Default: 15s
	CLITimeout time.Duration `mapstructure:"cli_timeout" validate:"gt=0" yaml:"cli_timeout"`

	// CLIAttempts is how many times the CLI check is tried
	// Default: 3
	CLIAttempts int `mapstructure:"cli_attempts" validate:"min=1,max=20" yaml:"cli_attempts"`

	// CLIDelay is the pause between CLI attempts
	// Default: 5s
	CLIDelay time.Duration `mapstructure:"cli_delay" yaml:"cli_delay"`

	// QuiescentStatuses lists the sync statuses considered safe to snapshot
	// Default: ["no_sync"]
	QuiescentStatuses []string `mapstructure:"quiescent_statuses" validate:"min=1" yaml:"quiescent_statuses"`
}

// LifecycleConfig controls stopping and restarting the node.
type LifecycleConfig struct {
	// PollInterval is how often liveness is checked while waiting for exit
	// Default: 1s
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0" yaml:"poll_interval"`

	// StopTimeout bounds the graceful stop before a snapshot
	// Default: 180s
	StopTimeout time.Duration `mapstructure:"stop_timeout" validate:"gt=0" yaml:"stop_timeout"`

	// ReloadStopTimeout bounds the graceful stop of the restart command
	// Default: 30s
	ReloadStopTimeout time.Duration `mapstructure:"reload_stop_timeout" validate:"gt=0" yaml:"reload_stop_timeout"`

	// ForceKill escalates to SIGKILL when the graceful stop times out
	// Default: false
	ForceKill bool `mapstructure:"force_kill" yaml:"force_kill"`

	// KillGrace is how long to wait for exit after SIGKILL
	// Default: 10s
	KillGrace time.Duration `mapstructure:"kill_grace" yaml:"kill_grace"`

	// StartTimeout bounds the wait for the admin port after restart
	// Default: 60s
	StartTimeout time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`

	// SessionPrefix names the tmux sessions: <prefix>-<network>-<retention>
	// Default: "grin"
	SessionPrefix string `mapstructure:"session_prefix" validate:"required" yaml:"session_prefix"`

	// TmuxBinary overrides the tmux executable
	TmuxBinary string `mapstructure:"tmux_binary" yaml:"tmux_binary,omitempty"`
}

// PublicationConfig controls packaging and the local publication directory.
type PublicationConfig struct {
	// Root is the web server's document root; each network gets a subdirectory
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// StagingDir holds archives while they are written. It must not be
	// served by the web server, and should share a filesystem with Root so
	// publishing is a rename.
	// Default: <state_dir>/staging
	StagingDir string `mapstructure:"staging_dir" yaml:"staging_dir"`

	// FilePrefix starts every archive name
	// Default: "grin"
	FilePrefix string `mapstructure:"file_prefix" validate:"required,excludesall=/" yaml:"file_prefix"`

	// Owner and Group receive published files (the web server identity)
	Owner string `mapstructure:"owner" yaml:"owner,omitempty"`
	Group string `mapstructure:"group" yaml:"group,omitempty"`

	// FileMode and DirMode are octal strings such as "0644"
	// Defaults: "0644", "0755"
	FileMode string `mapstructure:"file_mode" validate:"omitempty,octalmode" yaml:"file_mode"`
	DirMode  string `mapstructure:"dir_mode" validate:"omitempty,octalmode" yaml:"dir_mode"`

	// Keep is how many archives per network and retention are retained
	// Default: 1
	Keep int `mapstructure:"keep" validate:"min=1" yaml:"keep"`

	// TransientPatterns are removed from the data directory before packaging
	TransientPatterns []string `mapstructure:"transient_patterns" yaml:"transient_patterns"`

	// MinFreeSpace is the free space required in the staging directory
	// Supports human-readable formats: "1GB", "512MB", "10Gi"
	// Default: 1Gi
	MinFreeSpace bytesize.ByteSize `mapstructure:"min_free_space" yaml:"min_free_space,omitempty"`
}

// TargetConfig is one remote mirror.
type TargetConfig struct {
	Name    string `mapstructure:"name" validate:"required" yaml:"name"`
	Kind    string `mapstructure:"kind" validate:"required,oneof=ssh s3" yaml:"kind"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`

	SSH SSHTargetConfig `mapstructure:"ssh" yaml:"ssh,omitempty"`
	S3  S3TargetConfig  `mapstructure:"s3" yaml:"s3,omitempty"`
}

// SSHTargetConfig configures an ssh target. RemoteDir gets a per-network
// subdirectory.
type SSHTargetConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	KeyPath         string        `mapstructure:"key_path" yaml:"key_path"`
	KnownHostsPath  string        `mapstructure:"known_hosts_path" yaml:"known_hosts_path"`
	InsecureHostKey bool          `mapstructure:"insecure_host_key" yaml:"insecure_host_key,omitempty"`
	RemoteDir       string        `mapstructure:"remote_dir" yaml:"remote_dir"`
	Owner           string        `mapstructure:"owner" yaml:"owner,omitempty"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// S3TargetConfig configures an s3 target. Prefix gets a per-network suffix.
type S3TargetConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Region          string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// ScheduleConfig holds the cron specs installed by "schedule install".
type ScheduleConfig struct {
	// Publish runs publish-only. Default: "0 3 * * *"
	Publish string `mapstructure:"publish" yaml:"publish"`

	// Distribute runs distribute-only, after publish has had time to finish.
	// Default: "0 5 * * *"
	Distribute string `mapstructure:"distribute" yaml:"distribute"`

	// Binary is the chainsnap executable cron invokes. Default: this executable
	Binary string `mapstructure:"binary" yaml:"binary,omitempty"`
}

// EnabledTargets returns the targets with Enabled set, in order.
func (c *Config) EnabledTargets() []TargetConfig {
	var out []TargetConfig
	for _, t := range c.Targets {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CHAINSNAP_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  chainsnap config init\n\n"+
				"Or specify a custom config file:\n"+
				"  chainsnap <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  chainsnap config init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Owner read/write only: targets may carry credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use CHAINSNAP_ prefix and underscores
	// Example: CHAINSNAP_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CHAINSNAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/chainsnap/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can use sizes like "1Gi", "500Mi", "100MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "chainsnap")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "chainsnap")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
