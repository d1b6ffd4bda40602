package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marmos91/chainsnap/pkg/config"
	"github.com/marmos91/chainsnap/pkg/pipeline"
)

var (
	logsFollow bool
	logsLines  int
	logsSince  string
	logsRun    string
	logsList   bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show run logs",
	Long: `Display and optionally follow the log of a pipeline run.

Every run writes its own log under <state_dir>/runs, named after its start
time, action and run id. By default the newest run log is shown.

Examples:
  # Show the last 100 lines of the newest run
  chainsnap logs

  # Follow a run in progress
  chainsnap logs -f

  # Show the newest distribute run
  chainsnap logs --run distribute

  # Show a specific run by id
  chainsnap logs --run 0b9d5a3e

  # List every run log
  chainsnap logs --list

  # Show lines since a specific time
  chainsnap logs --since "2026-10-18T03:00:00Z"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show lines since timestamp (RFC3339 format)")
	logsCmd.Flags().StringVar(&logsRun, "run", "", "Select the newest run whose log name contains this action or run id")
	logsCmd.Flags().BoolVar(&logsList, "list", false, "List run logs instead of showing one")
}

func runLogs(cmd *cobra.Command, args []string) error {
	// Defaults are enough to find the state directory.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if logsList {
		logs, err := pipeline.RunLogs(cfg.StateDir)
		if err != nil {
			return err
		}
		for _, l := range logs {
			fmt.Println(filepath.Base(l))
		}
		return nil
	}

	logFile, err := pipeline.LatestRunLog(cfg.StateDir, logsRun)
	if errors.Is(err, pipeline.ErrNoRunLogs) {
		if logsRun != "" {
			return fmt.Errorf("no run log matches %q in %s", logsRun, pipeline.RunLogDir(cfg.StateDir))
		}
		return fmt.Errorf("no run logs in %s\nNo pipeline run has happened yet", pipeline.RunLogDir(cfg.StateDir))
	}
	if err != nil {
		return err
	}

	var sinceTime time.Time
	if logsSince != "" {
		sinceTime, err = time.Parse(time.RFC3339, logsSince)
		if err != nil {
			return fmt.Errorf("invalid --since format (use RFC3339): %w", err)
		}
	}

	if logsFollow {
		return followLogs(logFile, logsLines, sinceTime)
	}

	return showLogs(logFile, logsLines, sinceTime)
}

// showLogs displays the last N lines from the log file.
func showLogs(logFile string, lines int, since time.Time) error {
	file, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var allLines []string
	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !since.IsZero() {
			if lineTime := extractTimestamp(line); !lineTime.IsZero() && lineTime.Before(since) {
				continue
			}
		}
		allLines = append(allLines, line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	start := 0
	if len(allLines) > lines {
		start = len(allLines) - lines
	}

	for _, line := range allLines[start:] {
		fmt.Println(line)
	}

	return nil
}

// followLogs tails the log file and follows new entries until interrupted.
func followLogs(logFile string, initialLines int, since time.Time) error {
	if err := showLogs(logFile, initialLines, since); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(logFile); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	file, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of log file: %w", err)
	}

	reader := bufio.NewReader(file)

	ctx, stop := signalContext()
	defer stop()

	fmt.Fprintf(os.Stderr, "Following %s (Ctrl+C to stop)...\n", logFile)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&fsnotify.Write == fsnotify.Write {
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						break
					}
					fmt.Print(line)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// textTimeLayout matches the prefix of text-format log lines.
const textTimeLayout = "2006-01-02 15:04:05.000"

// extractTimestamp attempts to extract a timestamp from a log line.
// Supports the text format "[2006-01-02 15:04:05.000] ..." and the JSON
// "time" field.
func extractTimestamp(line string) time.Time {
	if strings.HasPrefix(line, "[") && len(line) > len(textTimeLayout)+1 && line[len(textTimeLayout)+1] == ']' {
		if t, err := time.ParseInLocation(textTimeLayout, line[1:len(textTimeLayout)+1], time.Local); err == nil {
			return t
		}
	}

	// Format: {"time":"2026-10-18T03:00:45.123Z",...}
	const timeKey = `"time":"`
	if idx := strings.Index(line, timeKey); idx >= 0 {
		start := idx + len(timeKey)
		if end := strings.IndexByte(line[start:], '"'); end > 0 {
			if t, err := time.Parse(time.RFC3339Nano, line[start:start+end]); err == nil {
				return t
			}
		}
	}

	return time.Time{}
}
