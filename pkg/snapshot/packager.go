// Package snapshot turns a stopped node's data directory into a compressed
// archive with a checksum sidecar and a recovery guide.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/chainsnap/internal/bytesize"
	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/instance"
)

var (
	// ErrInsufficientSpace means the staging filesystem is below the
	// configured free space floor.
	ErrInsufficientSpace = errors.New("insufficient free space")

	// ErrDataDirMissing means the instance's data directory does not exist.
	ErrDataDirMissing = errors.New("data directory missing")
)

// DefaultTransientPatterns are removed from the data directory before
// archiving. They hold state the node rebuilds on its own.
var DefaultTransientPatterns = []string{"txhashset_snapshot*", "txhashset_zip*", "peer"}

// Artifact is one archive together with its sidecar files.
type Artifact struct {
	Name         string             `json:"name"`
	ArchivePath  string             `json:"archive_path"`
	ChecksumPath string             `json:"checksum_path"`
	GuidePath    string             `json:"guide_path,omitempty"`
	SizeBytes    int64              `json:"size_bytes"`
	SHA256       string             `json:"sha256"`
	CreatedAt    time.Time          `json:"created_at"`
	Network      instance.Network   `json:"network"`
	Retention    instance.Retention `json:"retention"`
}

// Options configures the Packager.
type Options struct {
	StagingDir        string
	FilePrefix        string
	TransientPatterns []string
	MinFreeSpace      bytesize.ByteSize
}

// Packager builds artifacts in a staging directory.
type Packager struct {
	opts      Options
	now       func() time.Time
	freeSpace func(string) (uint64, error)
}

// NewPackager creates a Packager.
func NewPackager(opts Options) *Packager {
	if opts.FilePrefix == "" {
		opts.FilePrefix = "grin"
	}
	if opts.TransientPatterns == nil {
		opts.TransientPatterns = DefaultTransientPatterns
	}
	return &Packager{opts: opts, now: time.Now, freeSpace: FreeSpace}
}

// Preflight checks the data directory and staging free space. It touches
// nothing and is safe to call while the node runs.
func (p *Packager) Preflight(inst instance.ServiceInstance) error {
	fi, err := os.Stat(inst.DataDir)
	if err != nil || !fi.IsDir() {
		return fmt.Errorf("%s: %w", inst.DataDir, ErrDataDirMissing)
	}
	if err := os.MkdirAll(p.opts.StagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	if p.opts.MinFreeSpace == 0 {
		return nil
	}

	free, err := p.freeSpace(p.opts.StagingDir)
	if err != nil {
		return err
	}
	if bytesize.ByteSize(free) < p.opts.MinFreeSpace {
		return fmt.Errorf("%w: %s free in %s, need %s", ErrInsufficientSpace,
			bytesize.ByteSize(free), p.opts.StagingDir, p.opts.MinFreeSpace)
	}
	return nil
}

// Preclean removes transient files from the data directory. Call it only
// once the node is stopped.
func (p *Packager) Preclean(ctx context.Context, inst instance.ServiceInstance) ([]string, error) {
	var removed []string
	for _, pattern := range p.opts.TransientPatterns {
		matches, err := filepath.Glob(filepath.Join(inst.DataDir, pattern))
		if err != nil {
			return removed, fmt.Errorf("bad transient pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if err := os.RemoveAll(m); err != nil {
				return removed, fmt.Errorf("failed to remove %s: %w", m, err)
			}
			removed = append(removed, m)
			logger.DebugCtx(ctx, "removed transient path", logger.KeyPath, m)
		}
	}
	return removed, nil
}

// Package archives the data directory into the staging directory, then
// writes the checksum sidecar and the recovery guide. The archive is synced
// and closed before it is hashed.
func (p *Packager) Package(ctx context.Context, inst instance.ServiceInstance) (Artifact, error) {
	created := p.now().UTC()
	base := ArchiveBase(p.opts.FilePrefix, inst.Network, inst.Retention, created)
	art := Artifact{
		Name:         base + ArchiveExt,
		ArchivePath:  filepath.Join(p.opts.StagingDir, base+ArchiveExt),
		ChecksumPath: filepath.Join(p.opts.StagingDir, base+ChecksumExt),
		GuidePath:    filepath.Join(p.opts.StagingDir, GuideName),
		CreatedAt:    created,
		Network:      inst.Network,
		Retention:    inst.Retention,
	}

	partial := art.ArchivePath + ".partial"
	_ = os.Remove(partial)

	logger.InfoCtx(ctx, "archiving data directory", logger.KeyDataDir, inst.DataDir, logger.KeyArchive, art.Name)
	start := time.Now()
	if err := writeArchive(ctx, inst.DataDir, partial); err != nil {
		return Artifact{}, err
	}
	if err := os.Rename(partial, art.ArchivePath); err != nil {
		_ = os.Remove(partial)
		return Artifact{}, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := SyncDir(p.opts.StagingDir); err != nil {
		return Artifact{}, err
	}

	fi, err := os.Stat(art.ArchivePath)
	if err != nil {
		return Artifact{}, err
	}
	art.SizeBytes = fi.Size()

	if art.SHA256, err = HashFile(art.ArchivePath); err != nil {
		return Artifact{}, err
	}
	if err := WriteFileAtomic(art.ChecksumPath, FormatChecksum(art.SHA256, art.Name), 0644); err != nil {
		return Artifact{}, err
	}

	guide, err := RenderGuide(inst, art.Name, art.SHA256, created)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to render recovery guide: %w", err)
	}
	if err := WriteFileAtomic(art.GuidePath, guide, 0644); err != nil {
		return Artifact{}, err
	}

	logger.InfoCtx(ctx, "archive ready",
		logger.KeyArchive, art.Name,
		logger.KeySize, bytesize.Of(art.SizeBytes).String(),
		logger.KeyChecksum, art.SHA256,
		logger.KeyDurationMs, logger.Duration(start))
	return art, nil
}
