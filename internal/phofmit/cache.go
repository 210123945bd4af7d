package phofmit

import "time"

// ScanCache keeps target snapshots between runs so an unchanged tree does not
// have to be fingerprinted again. Entries are keyed by CacheKey.
type ScanCache interface {
	// Get returns the cached snapshot for key, or nil if there is none.
	Get(key string) (*Snapshot, error)

	// Put stores snap under key, replacing any previous entry.
	Put(key string, snap *Snapshot) error

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(key string) error

	// List returns every cache entry, newest first.
	List() ([]CacheEntry, error)

	// Purge removes entries created before cutoff and returns how many were removed.
	Purge(cutoff time.Time) (int, error)

	// Close releases the underlying storage.
	Close() error
}

// CacheEntry describes one cached snapshot.
type CacheEntry struct {
	Key       string
	BasePath  string
	FileCount int
	CreatedAt time.Time
}
