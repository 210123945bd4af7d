//go:build !unix

package fs

import "io/fs"

func idOf(p string, _ fs.FileInfo) fileID {
	return pathID(p)
}
