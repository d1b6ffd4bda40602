package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile writes the active registry to path in the Prometheus text
// format, atomically, for the node_exporter textfile collector.
func WriteTextfile(path string) error {
	reg := GetRegistry()
	if reg == nil {
		return errors.New("metrics not enabled")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create textfile directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, reg)
}
