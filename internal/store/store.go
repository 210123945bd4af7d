// Package store implements phofmit.SnapshotStore backends.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"phofmit/internal/phofmit"
)

// ErrNotFound is returned by Get for a key the store does not hold.
var ErrNotFound = errors.New("snapshot not found")

// validateKey rejects keys that could escape the store's namespace.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty snapshot key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid snapshot key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid snapshot key %q", key)
		}
	}
	return nil
}

// sortNewestFirst orders listings by modification time, then by key.
func sortNewestFirst(items []phofmit.StoredSnapshot) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ModifiedAt != items[j].ModifiedAt {
			return items[i].ModifiedAt > items[j].ModifiedAt
		}
		return items[i].Key < items[j].Key
	})
}
