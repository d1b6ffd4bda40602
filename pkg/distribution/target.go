// Package distribution mirrors the local publication directory to secondary
// hosts. Each target is handled independently: a failing target is reported
// and skipped, never aborting its siblings.
package distribution

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotPublished means the local marker is not Completed, so there is
	// nothing consistent to mirror.
	ErrNotPublished = errors.New("local publication is not completed")

	// ErrUnsupported is returned by targets for optional steps they lack,
	// such as ownership changes on object storage.
	ErrUnsupported = errors.New("operation not supported by target")
)

// Target is one remote destination, already scoped to a single network's
// directory (or key prefix). File names are relative to that directory.
type Target interface {
	Name() string
	Kind() string

	// Connect establishes and authenticates the connection.
	Connect(ctx context.Context) error
	Close() error

	EnsureDir(ctx context.Context) error
	List(ctx context.Context) ([]string, error)
	// ReadFile returns nil content for a missing file.
	ReadFile(ctx context.Context, name string) ([]byte, error)
	// Put stores name atomically: readers never observe a partial file.
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	Remove(ctx context.Context, name string) error
	FixOwnership(ctx context.Context) error
}
