package publication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/snapshot"
)

// ErrNothingPublished means the directory holds no archive with a sidecar.
var ErrNothingPublished = errors.New("no published archive")

// Options configures the local publication directory.
type Options struct {
	Root       string
	FilePrefix string
	Owner      string
	Group      string
	FileMode   os.FileMode
	DirMode    os.FileMode
	// Keep is how many archives per network and retention survive rotation.
	Keep int
}

// Publisher manages <root>/<network> directories.
type Publisher struct {
	opts Options
	now  func() time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(opts Options) *Publisher {
	if opts.FileMode == 0 {
		opts.FileMode = 0644
	}
	if opts.DirMode == 0 {
		opts.DirMode = 0755
	}
	if opts.Keep < 1 {
		opts.Keep = 1
	}
	if opts.FilePrefix == "" {
		opts.FilePrefix = "grin"
	}
	return &Publisher{opts: opts, now: time.Now}
}

// Dir returns the publication directory for n.
func (p *Publisher) Dir(n instance.Network) string {
	return filepath.Join(p.opts.Root, string(n))
}

// Prefix returns the archive file prefix.
func (p *Publisher) Prefix() string { return p.opts.FilePrefix }

// Begin creates the directory if needed and marks it in progress.
func (p *Publisher) Begin(ctx context.Context, n instance.Network, message string) error {
	dir := p.Dir(n)
	if err := os.MkdirAll(dir, p.opts.DirMode); err != nil {
		return fmt.Errorf("failed to create publication directory: %w", err)
	}
	if err := os.Chmod(dir, p.opts.DirMode); err != nil {
		return err
	}
	p.chown(ctx, dir)

	if err := WriteMarker(dir, Marker{State: InProgress, Message: message, UpdatedAt: p.now()}, p.opts.FileMode); err != nil {
		return err
	}
	p.chown(ctx, filepath.Join(dir, MarkerName))
	logger.InfoCtx(ctx, "publication marked in progress", logger.KeyPath, dir)
	return nil
}

// Publish moves a staged artifact into the publication directory in the
// order archive, checksum, guide, rotates older archives and finally marks
// the directory completed.
func (p *Publisher) Publish(ctx context.Context, art snapshot.Artifact) (snapshot.Artifact, error) {
	dir := p.Dir(art.Network)
	out := art
	out.ArchivePath = filepath.Join(dir, art.Name)
	out.ChecksumPath = filepath.Join(dir, snapshot.ChecksumName(art.Name))

	moves := [][2]string{
		{art.ArchivePath, out.ArchivePath},
		{art.ChecksumPath, out.ChecksumPath},
	}
	if art.GuidePath != "" {
		out.GuidePath = filepath.Join(dir, snapshot.GuideName)
		moves = append(moves, [2]string{art.GuidePath, out.GuidePath})
	}

	for _, m := range moves {
		if err := ctx.Err(); err != nil {
			return snapshot.Artifact{}, err
		}
		if err := moveFile(m[0], m[1]); err != nil {
			return snapshot.Artifact{}, err
		}
		if err := os.Chmod(m[1], p.opts.FileMode); err != nil {
			return snapshot.Artifact{}, err
		}
		p.chown(ctx, m[1])
	}
	if err := snapshot.SyncDir(dir); err != nil {
		return snapshot.Artifact{}, err
	}

	if _, err := p.Rotate(ctx, art.Network, art.Retention); err != nil {
		logger.WarnCtx(ctx, "archive rotation failed", logger.KeyError, err)
	}

	// updated_at must not precede the archive's write completion.
	updated := p.now()
	if fi, err := os.Stat(out.ArchivePath); err == nil && fi.ModTime().After(updated) {
		updated = fi.ModTime()
	}
	m := Marker{
		State:     Completed,
		Message:   fmt.Sprintf("%s %s snapshot ready", art.Network, art.Retention),
		Archive:   art.Name,
		Checksum:  filepath.Base(out.ChecksumPath),
		UpdatedAt: updated,
	}
	if err := WriteMarker(dir, m, p.opts.FileMode); err != nil {
		return snapshot.Artifact{}, err
	}
	p.chown(ctx, filepath.Join(dir, MarkerName))

	logger.InfoCtx(ctx, "snapshot published", logger.KeyPath, dir, logger.KeyArchive, art.Name)
	return out, nil
}

// Rotate deletes all but the newest Keep archives of n and r, together with
// their checksums. It returns the removed file names.
func (p *Publisher) Rotate(ctx context.Context, n instance.Network, r instance.Retention) ([]string, error) {
	archives, err := p.archives(n)
	if err != nil {
		return nil, err
	}

	var same []Entry
	for _, a := range archives {
		if a.Retention == r {
			same = append(same, a)
		}
	}
	if len(same) <= p.opts.Keep {
		return nil, nil
	}

	var removed []string
	for _, a := range same[p.opts.Keep:] {
		for _, name := range []string{a.Name, snapshot.ChecksumName(a.Name)} {
			err := os.Remove(filepath.Join(p.Dir(n), name))
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, err
			}
			removed = append(removed, name)
		}
		logger.InfoCtx(ctx, "rotated old archive", logger.KeyArchive, a.Name)
	}
	return removed, nil
}

// Entry is a published archive.
type Entry struct {
	Name        string             `json:"name"`
	Network     instance.Network   `json:"network"`
	Retention   instance.Retention `json:"retention"`
	SizeBytes   int64              `json:"size_bytes"`
	ModTime     time.Time          `json:"mod_time"`
	HasChecksum bool               `json:"has_checksum"`
}

// archives lists managed archives in the network's directory, newest first.
func (p *Publisher) archives(n instance.Network) ([]Entry, error) {
	dir := p.Dir(n)
	des, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool, len(des))
	for _, de := range des {
		names[de.Name()] = true
	}

	var out []Entry
	for _, de := range des {
		an, ok := snapshot.ParseArchiveName(de.Name())
		if !ok || an.Checksum || an.Prefix != p.opts.FilePrefix || an.Network != n {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{
			Name:        de.Name(),
			Network:     n,
			Retention:   an.Retention,
			SizeBytes:   fi.Size(),
			ModTime:     fi.ModTime(),
			HasChecksum: names[snapshot.ChecksumName(de.Name())],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Archives lists published archives for n, newest first.
func (p *Publisher) Archives(n instance.Network) ([]Entry, error) {
	return p.archives(n)
}

// Sources returns the file names a mirror of n's directory must carry:
// every archive that has a checksum, its checksum, and the guide if present.
// It fails with ErrNothingPublished when no complete archive exists.
func (p *Publisher) Sources(n instance.Network) ([]string, error) {
	archives, err := p.archives(n)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, a := range archives {
		if a.HasChecksum {
			files = append(files, a.Name, snapshot.ChecksumName(a.Name))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", p.Dir(n), ErrNothingPublished)
	}
	if _, err := os.Stat(filepath.Join(p.Dir(n), snapshot.GuideName)); err == nil {
		files = append(files, snapshot.GuideName)
	}
	return files, nil
}

func (p *Publisher) chown(ctx context.Context, path string) {
	if p.opts.Owner == "" && p.opts.Group == "" {
		return
	}
	uid, gid, err := lookupOwner(p.opts.Owner, p.opts.Group)
	if err == nil {
		err = os.Lchown(path, uid, gid)
	}
	if err != nil {
		logger.WarnCtx(ctx, "failed to set ownership", logger.KeyPath, path, logger.KeyError, err)
	}
}

// lookupOwner resolves names to ids; -1 leaves that id unchanged.
func lookupOwner(owner, group string) (int, int, error) {
	uid, gid := -1, -1
	if owner != "" {
		u, err := user.Lookup(owner)
		if err != nil {
			return 0, 0, err
		}
		if uid, err = strconv.Atoi(u.Uid); err != nil {
			return 0, 0, err
		}
		if group == "" {
			if gid, err = strconv.Atoi(u.Gid); err != nil {
				return 0, 0, err
			}
		}
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return 0, 0, err
		}
		if gid, err = strconv.Atoi(g.Gid); err != nil {
			return 0, 0, err
		}
	}
	return uid, gid, nil
}

// moveFile renames src to dst, copying when they sit on different
// filesystems.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("failed to move %s: %w", filepath.Base(src), err)
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
