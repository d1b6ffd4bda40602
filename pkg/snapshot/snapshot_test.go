package snapshot

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/chainsnap/internal/bytesize"
	"github.com/marmos91/chainsnap/pkg/instance"
)

func newDataDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "chain_data")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lmdb"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "txhashset_snapshot_123"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lmdb", "data.mdb"), []byte("chain state"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "txhashset_zip_1.zip"), []byte("tmp"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "peer"), []byte("peers"), 0644))
	return dir
}

func newPackager(t *testing.T) *Packager {
	p := NewPackager(Options{StagingDir: filepath.Join(t.TempDir(), "staging")})
	p.now = func() time.Time { return time.Date(2026, 10, 18, 23, 30, 0, 0, time.FixedZone("X", -3*3600)) }
	return p
}

func listArchive(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(zr)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	sort.Strings(names)
	return names
}

func TestPackage_ArchiveChecksumGuide(t *testing.T) {
	dataDir := newDataDir(t)
	p := newPackager(t)
	inst := instance.ServiceInstance{Network: instance.Mainnet, Retention: instance.Pruned, DataDir: dataDir, AdminPort: 3413}

	require.NoError(t, p.Preflight(inst))
	removed, err := p.Preclean(context.Background(), inst)
	require.NoError(t, err)
	assert.Len(t, removed, 3)

	art, err := p.Package(context.Background(), inst)
	require.NoError(t, err)

	// UTC date, not the local one.
	assert.Equal(t, "grin_mainnet_pruned_2026-10-19.tar.gz", art.Name)
	assert.FileExists(t, art.ArchivePath)
	assert.NoFileExists(t, art.ArchivePath+".partial")
	assert.Positive(t, art.SizeBytes)

	assert.Equal(t, []string{"chain_data/", "chain_data/lmdb/", "chain_data/lmdb/data.mdb"}, listArchive(t, art.ArchivePath))

	sidecar, err := os.ReadFile(art.ChecksumPath)
	require.NoError(t, err)
	assert.Equal(t, art.SHA256+"  "+art.Name+"\n", string(sidecar))

	digest, err := Verify(art.ArchivePath)
	require.NoError(t, err)
	assert.Equal(t, art.SHA256, digest)

	guide, err := os.ReadFile(art.GuidePath)
	require.NoError(t, err)
	assert.Contains(t, string(guide), "sha256sum -c grin_mainnet_pruned_2026-10-19.sha256")
	assert.Contains(t, string(guide), "tar -xzf grin_mainnet_pruned_2026-10-19.tar.gz")
	assert.Contains(t, string(guide), `"chain_data"`)
	assert.Contains(t, string(guide), "pruned snapshot")
}

func TestPackage_Cancelled(t *testing.T) {
	dataDir := newDataDir(t)
	p := newPackager(t)
	inst := instance.ServiceInstance{Network: instance.Testnet, Retention: instance.Full, DataDir: dataDir}
	require.NoError(t, p.Preflight(inst))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Package(ctx, inst)
	assert.ErrorIs(t, err, context.Canceled)

	entries, _ := os.ReadDir(p.opts.StagingDir)
	assert.Empty(t, entries)
}

func TestPreflight(t *testing.T) {
	p := newPackager(t)
	p.opts.MinFreeSpace = 10 * bytesize.GiB
	p.freeSpace = func(string) (uint64, error) { return uint64(bytesize.GiB), nil }

	err := p.Preflight(instance.ServiceInstance{DataDir: newDataDir(t)})
	assert.ErrorIs(t, err, ErrInsufficientSpace)

	err = p.Preflight(instance.ServiceInstance{DataDir: filepath.Join(t.TempDir(), "nope")})
	assert.ErrorIs(t, err, ErrDataDirMissing)
}

func TestVerify_DetectsTampering(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "grin_mainnet_full_2026-01-02.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("original"), 0644))

	_, err := Verify(archive)
	assert.ErrorIs(t, err, ErrMissingChecksum)

	digest, err := HashFile(archive)
	require.NoError(t, err)
	require.NoError(t, WriteFileAtomic(filepath.Join(dir, ChecksumName(filepath.Base(archive))), FormatChecksum(digest, filepath.Base(archive)), 0644))

	_, err = Verify(archive)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(archive, []byte("tampered"), 0644))
	_, err = Verify(archive)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestParseChecksum(t *testing.T) {
	digest := strings.Repeat("ab", 32)

	d, name, err := ParseChecksum([]byte(digest + " *file.tar.gz\n"))
	require.NoError(t, err)
	assert.Equal(t, digest, d)
	assert.Equal(t, "file.tar.gz", name)

	_, _, err = ParseChecksum([]byte("deadbeef  file.tar.gz\n"))
	assert.ErrorIs(t, err, ErrMalformedChecksum)

	_, _, err = ParseChecksum(nil)
	assert.ErrorIs(t, err, ErrMalformedChecksum)
}

func TestParseArchiveName(t *testing.T) {
	an, ok := ParseArchiveName("my_node_testnet_full_2026-03-04.sha256")
	require.True(t, ok)
	assert.Equal(t, "my_node", an.Prefix)
	assert.Equal(t, instance.Testnet, an.Network)
	assert.Equal(t, instance.Full, an.Retention)
	assert.True(t, an.Checksum)

	for _, bad := range []string{"RECOVERY.txt", "grin_mainnet_pruned.tar.gz", "grin_devnet_full_2026-01-01.tar.gz", "grin_mainnet_pruned_yesterday.tar.gz"} {
		_, ok := ParseArchiveName(bad)
		assert.False(t, ok, bad)
	}

	assert.True(t, Managed("grin", instance.Mainnet, "grin_mainnet_full_2026-01-01.tar.gz"))
	assert.False(t, Managed("grin", instance.Testnet, "grin_mainnet_full_2026-01-01.tar.gz"))
	assert.False(t, Managed("grin", instance.Mainnet, "other_mainnet_full_2026-01-01.tar.gz"))
}
