package distribution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/internal/telemetry"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/publication"
	"github.com/marmos91/chainsnap/pkg/snapshot"
)

// Source is the local publication directory being mirrored.
type Source interface {
	Dir(n instance.Network) string
	Prefix() string
	Sources(n instance.Network) ([]string, error)
}

// Runner mirrors a source to every target in order.
type Runner struct {
	source         Source
	connectTimeout time.Duration
	now            func() time.Time
}

// NewRunner creates a Runner. connectTimeout bounds each target's connection
// and authentication.
func NewRunner(source Source, connectTimeout time.Duration) *Runner {
	if connectTimeout <= 0 {
		connectTimeout = 15 * time.Second
	}
	return &Runner{source: source, connectTimeout: connectTimeout, now: time.Now}
}

// Distribute checks that n's local publication is complete and mirrors it to
// every target. Per-target failures land in the report; the returned error
// is reserved for problems that prevent distribution altogether.
func (r *Runner) Distribute(ctx context.Context, n instance.Network, targets []Target) (Report, error) {
	report := Report{Network: n}
	dir := r.source.Dir(n)

	marker, err := publication.ReadMarker(dir)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrNotPublished, err)
	}
	if marker.State != publication.Completed {
		return report, fmt.Errorf("%w: marker is %s", ErrNotPublished, marker.State)
	}
	files, err := r.source.Sources(n)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrNotPublished, err)
	}

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Outcomes = append(report.Outcomes, r.mirror(ctx, t, dir, n, files, marker))
	}
	return report, nil
}

func (r *Runner) mirror(ctx context.Context, t Target, dir string, n instance.Network, files []string, marker publication.Marker) Outcome {
	out := Outcome{Target: t.Name(), Kind: t.Kind()}
	start := time.Now()

	if rc := logger.FromContext(ctx); rc != nil {
		ctx = logger.WithContext(ctx, rc.WithTarget(t.Name()))
	}
	ctx, span := telemetry.StartTargetSpan(ctx, t.Name(), t.Kind())
	defer span.End()

	err := r.mirrorSteps(ctx, t, dir, n, files, marker, &out)
	out.Duration = time.Since(start)
	if cerr := t.Close(); cerr != nil {
		logger.DebugCtx(ctx, "failed to close target", logger.KeyError, cerr)
	}

	if err != nil {
		out.fail(err)
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "distribution to target failed", logger.KeyKind, t.Kind(), logger.KeyError, err)
		return out
	}
	logger.InfoCtx(ctx, "target mirrored",
		logger.KeyKind, t.Kind(),
		logger.KeyFiles, len(out.Uploaded),
		logger.KeyPruned, len(out.Pruned),
		logger.KeyDurationMs, logger.Duration(start))
	return out
}

func (r *Runner) mirrorSteps(ctx context.Context, t Target, dir string, n instance.Network, files []string, marker publication.Marker, out *Outcome) error {
	connectCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	err := t.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := t.EnsureDir(ctx); err != nil {
		return fmt.Errorf("create remote directory: %w", err)
	}

	if err := r.putMarker(ctx, t, publication.Marker{
		State:   publication.InProgress,
		Message: "mirroring",
	}); err != nil {
		return fmt.Errorf("write in-progress marker: %w", err)
	}

	if err := r.transfer(ctx, t, dir, files, out); err != nil {
		return err
	}
	if err := r.prune(ctx, t, n, files, out); err != nil {
		return err
	}

	done := marker
	done.UpdatedAt = time.Time{}
	if err := r.putMarker(ctx, t, done); err != nil {
		return fmt.Errorf("write completed marker: %w", err)
	}

	if err := t.FixOwnership(ctx); err != nil && !errors.Is(err, ErrUnsupported) {
		out.Warnings = append(out.Warnings, "ownership: "+err.Error())
		logger.WarnCtx(ctx, "failed to fix remote ownership", logger.KeyError, err)
	}
	return nil
}

// transfer uploads every archive whose remote sidecar differs from the local
// one. The archive goes first so a present sidecar always describes a
// complete archive.
func (r *Runner) transfer(ctx context.Context, t Target, dir string, files []string, out *Outcome) error {
	for _, name := range files {
		an, ok := snapshot.ParseArchiveName(name)
		switch {
		case ok && an.Checksum:
			continue
		case ok:
			if err := r.syncArchive(ctx, t, dir, name, out); err != nil {
				return err
			}
		default:
			if err := r.syncPlain(ctx, t, dir, name, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) syncArchive(ctx context.Context, t Target, dir, name string, out *Outcome) error {
	sidecar := snapshot.ChecksumName(name)
	local, err := os.ReadFile(filepath.Join(dir, sidecar))
	if err != nil {
		return err
	}
	remote, err := t.ReadFile(ctx, sidecar)
	if err != nil {
		return fmt.Errorf("read remote %s: %w", sidecar, err)
	}
	if bytes.Equal(local, remote) {
		out.Skipped = append(out.Skipped, name)
		return nil
	}

	if err := uploadFile(ctx, t, dir, name); err != nil {
		return err
	}
	if err := t.Put(ctx, sidecar, bytes.NewReader(local), int64(len(local))); err != nil {
		return fmt.Errorf("upload %s: %w", sidecar, err)
	}
	out.Uploaded = append(out.Uploaded, name, sidecar)
	return nil
}

func (r *Runner) syncPlain(ctx context.Context, t Target, dir, name string, out *Outcome) error {
	local, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	remote, err := t.ReadFile(ctx, name)
	if err != nil {
		return fmt.Errorf("read remote %s: %w", name, err)
	}
	if bytes.Equal(local, remote) {
		out.Skipped = append(out.Skipped, name)
		return nil
	}
	if err := t.Put(ctx, name, bytes.NewReader(local), int64(len(local))); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	out.Uploaded = append(out.Uploaded, name)
	return nil
}

func uploadFile(ctx context.Context, t Target, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		return err
	}

	logger.InfoCtx(ctx, "uploading", logger.KeyArchive, name, logger.KeySize, fi.Size())
	if err := t.Put(ctx, name, f, fi.Size()); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// prune removes remote archives and checksums of this network that are no
// longer published locally. Files outside the naming convention are left alone.
func (r *Runner) prune(ctx context.Context, t Target, n instance.Network, files []string, out *Outcome) error {
	keep := make(map[string]bool, len(files))
	for _, f := range files {
		keep[f] = true
	}

	remote, err := t.List(ctx)
	if err != nil {
		return fmt.Errorf("list remote: %w", err)
	}
	for _, name := range remote {
		if keep[name] || !snapshot.Managed(r.source.Prefix(), n, name) {
			continue
		}
		if err := t.Remove(ctx, name); err != nil {
			return fmt.Errorf("prune %s: %w", name, err)
		}
		out.Pruned = append(out.Pruned, name)
	}
	return nil
}

func (r *Runner) putMarker(ctx context.Context, t Target, m publication.Marker) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = r.now().UTC()
	}
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return t.Put(ctx, publication.MarkerName, bytes.NewReader(data), int64(len(data)))
}
