package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/internal/telemetry"
	"github.com/marmos91/chainsnap/pkg/config"
	"github.com/marmos91/chainsnap/pkg/history"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/metrics"
)

// ExitError carries a process exit status out of a command. Err may be nil
// when the command already reported its outcome.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig loads the configuration named by --config and initializes the
// logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// initTelemetry starts tracing and returns the flush function.
func initTelemetry(ctx context.Context, cfg *config.Config) func() {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "chainsnap",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		logger.Warn("Tracing disabled", logger.KeyError, err)
	}
	return func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to flush traces", logger.KeyError, err)
		}
	}
}

// initMetrics prepares the Prometheus registry when the textfile export is on.
func initMetrics(cfg *config.Config) {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Debug("Metrics enabled", logger.KeyPath, cfg.Metrics.TextfilePath)
	}
}

// openHistory opens the run history store.
func openHistory(cfg *config.Config) (*history.Store, error) {
	store, err := history.Open(&cfg.History)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return store, nil
}

// parseNetworks converts --network values; empty means every network.
func parseNetworks(values []string) ([]instance.Network, error) {
	var out []instance.Network
	for _, v := range values {
		n, err := instance.ParseNetwork(v)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// wantNetwork reports whether n passes the --network filter.
func wantNetwork(filter []instance.Network, n instance.Network) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == n {
			return true
		}
	}
	return false
}
