package phofmit

import (
	"context"
	"io"
)

// SnapshotStore provides an interface for snapshot storage backends.
// Snapshots are opaque byte streams (possibly encrypted) addressed by key.
type SnapshotStore interface {
	// Name returns the configured name of the store.
	Name() string

	// Put stores the snapshot read from r under key, replacing any previous
	// object. size is the number of bytes that will be read from r.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get retrieves the snapshot stored under key and writes it to w.
	Get(ctx context.Context, key string, w io.Writer) error

	// List returns the stored snapshots, newest first.
	List(ctx context.Context) ([]StoredSnapshot, error)

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}

// StoredSnapshot describes an object held by a SnapshotStore.
type StoredSnapshot struct {
	Key        string
	Size       int64
	ModifiedAt int64
}
