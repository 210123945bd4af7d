package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"phofmit/internal/phofmit"
)

type memoryObject struct {
	data     []byte
	modified int64
}

// MemoryStore keeps snapshots in memory. It is safe for concurrent use and
// meant for tests.
type MemoryStore struct {
	name    string
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store with the given name.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:    name,
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// Name implements phofmit.SnapshotStore.
func (m *MemoryStore) Name() string { return m.name }

// Put implements phofmit.SnapshotStore.
func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, modified: m.now().UnixNano()}
	return nil
}

// Get implements phofmit.SnapshotStore.
func (m *MemoryStore) Get(_ context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if _, err := io.Copy(w, bytes.NewReader(obj.data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// List implements phofmit.SnapshotStore.
func (m *MemoryStore) List(context.Context) ([]phofmit.StoredSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]phofmit.StoredSnapshot, 0, len(m.objects))
	for key, obj := range m.objects {
		items = append(items, phofmit.StoredSnapshot{
			Key:        key,
			Size:       int64(len(obj.data)),
			ModifiedAt: obj.modified,
		})
	}
	sortNewestFirst(items)
	return items, nil
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(context.Context) error {
	return nil
}

var _ phofmit.SnapshotStore = (*MemoryStore)(nil)
