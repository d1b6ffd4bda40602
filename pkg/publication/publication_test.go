package publication

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/chainsnap/pkg/instance"
	"github.com/marmos91/chainsnap/pkg/snapshot"
)

func stageArtifact(t *testing.T, staging string, n instance.Network, r instance.Retention, day time.Time) snapshot.Artifact {
	t.Helper()
	require.NoError(t, os.MkdirAll(staging, 0755))
	name := snapshot.ArchiveBase("grin", n, r, day) + snapshot.ArchiveExt
	art := snapshot.Artifact{
		Name:         name,
		ArchivePath:  filepath.Join(staging, name),
		ChecksumPath: filepath.Join(staging, snapshot.ChecksumName(name)),
		GuidePath:    filepath.Join(staging, snapshot.GuideName),
		Network:      n,
		Retention:    r,
	}
	require.NoError(t, os.WriteFile(art.ArchivePath, []byte("archive "+name), 0600))
	digest, err := snapshot.HashFile(art.ArchivePath)
	require.NoError(t, err)
	art.SHA256 = digest
	require.NoError(t, os.WriteFile(art.ChecksumPath, snapshot.FormatChecksum(digest, name), 0600))
	require.NoError(t, os.WriteFile(art.GuidePath, []byte("guide"), 0600))
	return art
}

func TestMarker_RoundTripAndValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadMarker(dir)
	assert.ErrorIs(t, err, ErrNoMarker)

	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	require.NoError(t, WriteMarker(dir, Marker{State: InProgress, Message: "packaging", UpdatedAt: at}, 0644))

	m, err := ReadMarker(dir)
	require.NoError(t, err)
	assert.Equal(t, InProgress, m.State)
	assert.Equal(t, time.UTC, m.UpdatedAt.Location())
	assert.True(t, at.Equal(m.UpdatedAt))

	raw, err := os.ReadFile(filepath.Join(dir, MarkerName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"state": "in_progress"`)
	assert.Contains(t, string(raw), `"updated_at": "2026-10-18T09:00:00Z"`)

	_, err = DecodeMarker([]byte(`{"state":"done"}`))
	assert.Error(t, err)
}

func TestPublish_OrderAndCompletedMarker(t *testing.T) {
	root := t.TempDir()
	p := NewPublisher(Options{Root: filepath.Join(root, "pub")})
	ctx := context.Background()

	require.NoError(t, p.Begin(ctx, instance.Mainnet, "packaging"))
	m, err := ReadMarker(p.Dir(instance.Mainnet))
	require.NoError(t, err)
	assert.Equal(t, InProgress, m.State)

	art := stageArtifact(t, filepath.Join(root, "staging"), instance.Mainnet, instance.Pruned, time.Now())
	out, err := p.Publish(ctx, art)
	require.NoError(t, err)

	assert.FileExists(t, out.ArchivePath)
	assert.FileExists(t, out.ChecksumPath)
	assert.FileExists(t, out.GuidePath)
	assert.NoFileExists(t, art.ArchivePath)

	fi, err := os.Stat(out.ArchivePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), fi.Mode().Perm())

	m, err = ReadMarker(p.Dir(instance.Mainnet))
	require.NoError(t, err)
	assert.Equal(t, Completed, m.State)
	assert.Equal(t, art.Name, m.Archive)
	assert.Equal(t, snapshot.ChecksumName(art.Name), m.Checksum)
	assert.False(t, m.UpdatedAt.Before(fi.ModTime().UTC()), "completed marker must not predate the archive")

	_, err = snapshot.Verify(out.ArchivePath)
	assert.NoError(t, err)
}

func TestRotate_KeepsNewestPerRetention(t *testing.T) {
	root := t.TempDir()
	p := NewPublisher(Options{Root: root, Keep: 1})
	dir := p.Dir(instance.Testnet)
	require.NoError(t, os.MkdirAll(dir, 0755))

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	write := func(name string, age time.Duration) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
		require.NoError(t, os.Chtimes(path, base.Add(-age), base.Add(-age)))
	}
	write("grin_testnet_pruned_2026-09-29.tar.gz", 48*time.Hour)
	write("grin_testnet_pruned_2026-09-29.sha256", 48*time.Hour)
	write("grin_testnet_pruned_2026-09-30.tar.gz", 24*time.Hour)
	write("grin_testnet_pruned_2026-09-30.sha256", 24*time.Hour)
	write("grin_testnet_full_2026-09-28.tar.gz", 72*time.Hour)
	write("unrelated.tar.gz", 96*time.Hour)

	removed, err := p.Rotate(context.Background(), instance.Testnet, instance.Pruned)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"grin_testnet_pruned_2026-09-29.tar.gz", "grin_testnet_pruned_2026-09-29.sha256"}, removed)

	assert.FileExists(t, filepath.Join(dir, "grin_testnet_pruned_2026-09-30.tar.gz"))
	assert.FileExists(t, filepath.Join(dir, "grin_testnet_full_2026-09-28.tar.gz"))
	assert.FileExists(t, filepath.Join(dir, "unrelated.tar.gz"))
}

func TestSources(t *testing.T) {
	root := t.TempDir()
	p := NewPublisher(Options{Root: root})

	_, err := p.Sources(instance.Mainnet)
	assert.ErrorIs(t, err, ErrNothingPublished)

	dir := p.Dir(instance.Mainnet)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grin_mainnet_full_2026-10-18.tar.gz"), []byte("a"), 0644))

	// An archive without its sidecar is not publishable.
	_, err = p.Sources(instance.Mainnet)
	assert.ErrorIs(t, err, ErrNothingPublished)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "grin_mainnet_full_2026-10-18.sha256"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshot.GuideName), []byte("g"), 0644))

	files, err := p.Sources(instance.Mainnet)
	require.NoError(t, err)
	assert.Equal(t, []string{"grin_mainnet_full_2026-10-18.tar.gz", "grin_mainnet_full_2026-10-18.sha256", snapshot.GuideName}, files)
}
