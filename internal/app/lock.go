package app

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrTargetBusy is returned when another run is already applying moves to
// the same target tree.
var ErrTargetBusy = errors.New("another mirror run is using this target")

// lockTarget takes an exclusive, non-blocking lock for basePath. The lock
// file lives under lockDir so the target tree itself is never written to.
func lockTarget(lockDir, basePath string) (*flock.Flock, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	sum := sha256.Sum256([]byte(basePath))
	lock := flock.New(filepath.Join(lockDir, hex.EncodeToString(sum[:8])+".lock"))

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetBusy, basePath)
	}
	return lock, nil
}
