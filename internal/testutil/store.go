package testutil

import (
	"phofmit/internal/phofmit"
	"phofmit/internal/store"
)

// NewTestStore creates a new in-memory snapshot store for testing.
func NewTestStore() phofmit.SnapshotStore {
	return store.NewMemoryStore("test-store")
}
