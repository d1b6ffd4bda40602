package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		_ = RemoveTee()
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		SetFormat("text")
		SetLevel("INFO")
	}

	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.Contains(t, out, "[DEBUG] debug message")
		assert.Contains(t, out, "[INFO] info message")
		assert.Contains(t, out, "[WARN] warn message")
		assert.Contains(t, out, "[ERROR] error message")
	})

	t.Run("WarnLevelFiltersDebugAndInfo", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("WARN")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("SetLevelIgnoresInvalidValues", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")
		SetLevel("LOUD")

		Warn("still filtered")
		assert.Empty(t, buf.String())
	})
}

func TestTextFormatting(t *testing.T) {
	t.Run("StructuredFieldsAreAppended", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		Info("instance located", KeyNetwork, "mainnet", KeyPID, 4242)

		out := buf.String()
		assert.Contains(t, out, "instance located")
		assert.Contains(t, out, "network=mainnet")
		assert.Contains(t, out, "pid=4242")
	})

	t.Run("ValuesWithSpacesAreQuoted", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		Info("stop failed", KeyError, "process still alive")

		assert.Contains(t, buf.String(), `error="process still alive"`)
	})

	t.Run("GroupsFlattenIntoDottedKeys", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		With().WithGroup("ssh").Info("connected", "host", "mirror-1")

		assert.Contains(t, buf.String(), "ssh.host=mirror-1")
	})
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	Info("archive written", KeyArchive, "grin_mainnet_pruned_2026-10-18.tar.gz", KeySize, 1024)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "archive written", entry["msg"])
	assert.Equal(t, "grin_mainnet_pruned_2026-10-18.tar.gz", entry[KeyArchive])
	assert.EqualValues(t, 1024, entry[KeySize])
}

func TestContextLogging(t *testing.T) {
	t.Run("RunContextInjectsFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		rc := NewRunContext("run-1", "publish").WithNetwork("testnet")
		ctx := Stage(WithContext(context.Background(), rc), "verify")

		InfoCtx(ctx, "checking sync state")

		out := buf.String()
		assert.Contains(t, out, "run_id=run-1")
		assert.Contains(t, out, "action=publish")
		assert.Contains(t, out, "stage=verify")
		assert.Contains(t, out, "network=testnet")
	})

	t.Run("ContextWithoutRunContextHandled", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		InfoCtx(context.Background(), "plain")
		assert.Contains(t, buf.String(), "plain")
	})

	t.Run("WithStageDoesNotMutateParent", func(t *testing.T) {
		rc := NewRunContext("run-2", "distribute")
		child := rc.WithStage("distribute").WithTarget("mirror")

		assert.Empty(t, rc.Stage)
		assert.Empty(t, rc.Target)
		assert.Equal(t, "mirror", child.Target)
	})
}

func TestTee(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, AddTee(path))
	assert.Equal(t, path, TeePath())

	Info("mirrored line", KeyStage, "package")
	require.NoError(t, RemoveTee())
	Info("terminal only")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(data), "mirrored line")
	assert.NotContains(t, string(data), "terminal only")
	assert.NotContains(t, string(data), "\033[")
	assert.Contains(t, buf.String(), "mirrored line")
	assert.Contains(t, buf.String(), "terminal only")
	assert.Empty(t, TeePath())
}

func TestConcurrentLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Info("concurrent", KeyAttempt, n)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, strings.Count(buf.String(), "concurrent"))
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, "", Err(nil).Key)
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
	assert.Equal(t, KeyTarget, Target("mirror").Key)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}
