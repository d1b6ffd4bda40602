// Package publication owns the local publication directory: it moves
// finished artifacts into place and maintains the status.json readiness
// marker consumers poll.
package publication

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/chainsnap/pkg/snapshot"
)

// MarkerName is the readiness marker file name.
const MarkerName = "status.json"

// ErrNoMarker means the directory has never been published to.
var ErrNoMarker = errors.New("no publication marker")

// State of a publication directory.
type State string

const (
	InProgress State = "in_progress"
	Completed  State = "completed"
)

// Marker is the content of status.json.
type Marker struct {
	State     State     `json:"state"`
	Message   string    `json:"message"`
	Archive   string    `json:"archive,omitempty"`
	Checksum  string    `json:"checksum,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Encode renders the marker as indented JSON with a trailing newline.
func (m Marker) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeMarker parses status.json content and rejects unknown states.
func DecodeMarker(data []byte) (Marker, error) {
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("invalid marker: %w", err)
	}
	if m.State != InProgress && m.State != Completed {
		return Marker{}, fmt.Errorf("invalid marker state %q", m.State)
	}
	return m, nil
}

// ReadMarker loads dir/status.json.
func ReadMarker(dir string) (Marker, error) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerName))
	if errors.Is(err, os.ErrNotExist) {
		return Marker{}, ErrNoMarker
	}
	if err != nil {
		return Marker{}, err
	}
	return DecodeMarker(data)
}

// WriteMarker atomically replaces dir/status.json.
func WriteMarker(dir string, m Marker, perm os.FileMode) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	m.UpdatedAt = m.UpdatedAt.UTC()
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return snapshot.WriteFileAtomic(filepath.Join(dir, MarkerName), data, perm)
}
