package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/chainsnap/pkg/instance"
)

const (
	ArchiveExt  = ".tar.gz"
	ChecksumExt = ".sha256"
	GuideName   = "RECOVERY.txt"
	dateLayout  = "2006-01-02"
)

// ArchiveBase returns "<prefix>_<network>_<retention>_<YYYY-MM-DD>" for t in UTC.
func ArchiveBase(prefix string, n instance.Network, r instance.Retention, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s", prefix, n, r, t.UTC().Format(dateLayout))
}

// ChecksumName returns the sidecar name for an archive file name.
func ChecksumName(archiveName string) string {
	return strings.TrimSuffix(archiveName, ArchiveExt) + ChecksumExt
}

// ArchiveName is a parsed archive or checksum file name.
type ArchiveName struct {
	Prefix    string
	Network   instance.Network
	Retention instance.Retention
	Date      time.Time
	Checksum  bool
}

// ParseArchiveName parses names produced by ArchiveBase plus either
// extension. ok is false for anything else.
func ParseArchiveName(name string) (ArchiveName, bool) {
	var an ArchiveName
	switch {
	case strings.HasSuffix(name, ArchiveExt):
		name = strings.TrimSuffix(name, ArchiveExt)
	case strings.HasSuffix(name, ChecksumExt):
		name = strings.TrimSuffix(name, ChecksumExt)
		an.Checksum = true
	default:
		return ArchiveName{}, false
	}

	// The prefix itself may contain underscores, so split from the right.
	parts := strings.Split(name, "_")
	if len(parts) < 4 {
		return ArchiveName{}, false
	}
	n := len(parts)
	date, err := time.Parse(dateLayout, parts[n-1])
	if err != nil {
		return ArchiveName{}, false
	}
	network := instance.Network(parts[n-3])
	retention := instance.Retention(parts[n-2])
	if network != instance.Mainnet && network != instance.Testnet {
		return ArchiveName{}, false
	}
	if retention != instance.Full && retention != instance.Pruned {
		return ArchiveName{}, false
	}

	an.Prefix = strings.Join(parts[:n-3], "_")
	an.Network = network
	an.Retention = retention
	an.Date = date
	return an, true
}

// Managed reports whether name is an archive or checksum this tool produces
// for prefix and network.
func Managed(prefix string, n instance.Network, name string) bool {
	an, ok := ParseArchiveName(name)
	return ok && an.Prefix == prefix && an.Network == n
}
