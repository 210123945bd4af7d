//go:build unix

package fs

import (
	"io/fs"
	"syscall"
)

// idOf uses the device and inode numbers so that two symlinks to the same
// directory compare equal.
func idOf(p string, info fs.FileInfo) fileID {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return pathID(p)
	}
	return fileID{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}
}
