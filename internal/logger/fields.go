package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging. Use them consistently so the
// per-run logs can be grepped and aggregated.
const (
	KeyTraceID = "trace_id"
	KeyRunID   = "run_id"
	KeyAction  = "action"
	KeyStage   = "stage"

	// Instance classification
	KeyNetwork   = "network"
	KeyRetention = "retention"
	KeyPID       = "pid"
	KeyBinary    = "binary"
	KeyWorkDir   = "workdir"
	KeyDataDir   = "datadir"
	KeyPort      = "port"
	KeySession   = "session"

	// Verification
	KeyChannel    = "channel"
	KeySyncStatus = "sync_status"
	KeyHeight     = "height"
	KeyPeers      = "peers"
	KeyAttempt    = "attempt"

	// Packaging / publication
	KeyPath     = "path"
	KeyArchive  = "archive"
	KeySize     = "size"
	KeyChecksum = "checksum"
	KeyState    = "state"

	// Distribution
	KeyTarget = "target"
	KeyKind   = "kind"
	KeyHost   = "host"
	KeyBucket = "bucket"
	KeyFiles  = "files"
	KeyPruned = "pruned"

	KeyDurationMs = "duration_ms"
	KeyTimeout    = "timeout"
	KeyError      = "error"
)

// Network returns a slog.Attr for the instance network
func Network(n string) slog.Attr {
	return slog.String(KeyNetwork, n)
}

// Retention returns a slog.Attr for the retention mode
func Retention(r string) slog.Attr {
	return slog.String(KeyRetention, r)
}

// PID returns a slog.Attr for a process id
func PID(pid int32) slog.Attr {
	return slog.Int(KeyPID, int(pid))
}

// Port returns a slog.Attr for a TCP port
func Port(p int) slog.Attr {
	return slog.Int(KeyPort, p)
}

// Path returns a slog.Attr for a filesystem path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Archive returns a slog.Attr for an archive file name
func Archive(name string) slog.Attr {
	return slog.String(KeyArchive, name)
}

// Size returns a slog.Attr for a size in bytes
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Target returns a slog.Attr for a distribution target name
func Target(name string) slog.Attr {
	return slog.String(KeyTarget, name)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Timeout returns a slog.Attr for a configured timeout
func Timeout(d time.Duration) slog.Attr {
	return slog.Duration(KeyTimeout, d)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
