package snapshot

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrChecksumMismatch means the archive does not match its sidecar.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrMissingChecksum means the archive has no sidecar.
	ErrMissingChecksum = errors.New("checksum file missing")

	// ErrMalformedChecksum means the sidecar is not in sha256sum format.
	ErrMalformedChecksum = errors.New("malformed checksum file")
)

// HashFile returns the hex SHA-256 digest of path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FormatChecksum renders a sha256sum line: "<hex>  <name>\n".
func FormatChecksum(digest, name string) []byte {
	return []byte(digest + "  " + name + "\n")
}

// ParseChecksum reads the first sha256sum line, accepting the binary-mode
// marker "*" before the file name.
func ParseChecksum(data []byte) (digest, name string, err error) {
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return "", "", fmt.Errorf("%w: %q", ErrMalformedChecksum, line)
		}
		digest = strings.ToLower(fields[0])
		if len(digest) != sha256.Size*2 {
			return "", "", fmt.Errorf("%w: bad digest length", ErrMalformedChecksum)
		}
		if _, err := hex.DecodeString(digest); err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrMalformedChecksum, err)
		}
		return digest, strings.TrimPrefix(fields[1], "*"), nil
	}
	return "", "", fmt.Errorf("%w: empty", ErrMalformedChecksum)
}

// WriteFileAtomic writes data to path via a synced temp file, a rename and a
// sync of the parent directory.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return SyncDir(dir)
}

// SyncDir fsyncs a directory so renames inside it are durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory %s: %w", dir, err)
	}
	return nil
}

// Verify recomputes the archive digest and compares it with the sidecar next
// to it. It returns the digest on success.
func Verify(archivePath string) (string, error) {
	sidecar := filepath.Join(filepath.Dir(archivePath), ChecksumName(filepath.Base(archivePath)))
	data, err := os.ReadFile(sidecar)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", sidecar, ErrMissingChecksum)
	}
	if err != nil {
		return "", err
	}

	want, name, err := ParseChecksum(data)
	if err != nil {
		return "", err
	}
	if name != filepath.Base(archivePath) {
		return "", fmt.Errorf("%w: sidecar names %q", ErrChecksumMismatch, name)
	}

	got, err := HashFile(archivePath)
	if err != nil {
		return "", err
	}
	if got != want {
		return got, fmt.Errorf("%w: %s has %s, sidecar says %s", ErrChecksumMismatch, filepath.Base(archivePath), got, want)
	}
	return got, nil
}
