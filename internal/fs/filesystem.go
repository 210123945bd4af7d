package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"phofmit/internal/phofmit"
)

// IgnoreFileName is the per-tree ignore file read from the walk root.
const IgnoreFileName = ".phofmitignore"

// OSWalker is the real filesystem implementation of phofmit.Walker.
type OSWalker struct {
	logger phofmit.Logger
}

// NewOSWalker creates a walker that operates on the real filesystem.
func NewOSWalker(logger phofmit.Logger) *OSWalker {
	if logger == nil {
		logger = phofmit.NewNopLogger()
	}
	return &OSWalker{logger: logger}
}

// walk holds the state of a single traversal.
type walk struct {
	opts    phofmit.WalkOptions
	ignore  *IgnoreMatcher
	fn      func(phofmit.WalkEntry) error
	visited map[fileID]bool // directories on the current path
}

// Walk visits the regular files under root in lexical order.
//
// Entries listed in the root's ignore file are skipped together with
// everything below them. An unreadable root is always an error; unreadable
// subdirectories are skipped with a warning when opts.IgnoreUnreadable is set.
func (w *OSWalker) Walk(ctx context.Context, root string, opts phofmit.WalkOptions, fn func(phofmit.WalkEntry) error) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", root)
	}

	raw, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return err
	}
	st := &walk{
		opts:    opts,
		ignore:  NewIgnoreMatcher(append(append([]string{}, defaultIgnorePatterns...), raw...)),
		fn:      fn,
		visited: make(map[fileID]bool),
	}
	st.visited[idOf(root, info)] = true
	return w.walkDir(ctx, st, root, "", 0)
}

func (w *OSWalker) walkDir(ctx context.Context, st *walk, absDir, relDir string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// os.ReadDir sorts by filename.
	entries, err := os.ReadDir(absDir)
	if err != nil {
		if relDir != "" && st.opts.IgnoreUnreadable {
			w.logger.Warn("skipping unreadable directory", "path", relDir, "error", err)
			return nil
		}
		return fmt.Errorf("reading directory %s: %w", absDir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if st.opts.IgnoreHidden && strings.HasPrefix(name, ".") {
			continue
		}
		rel := path.Join(relDir, name)
		if st.ignore.Match(rel) {
			continue
		}
		abs := filepath.Join(absDir, name)

		isLink := entry.Type()&fs.ModeSymlink != 0
		var info fs.FileInfo
		if isLink {
			info, err = os.Stat(abs)
		} else {
			info, err = entry.Info()
		}
		if err != nil {
			if st.opts.IgnoreUnreadable || isLink {
				w.logger.Warn("skipping entry", "path", rel, "error", err)
				continue
			}
			return fmt.Errorf("stat %s: %w", abs, err)
		}

		if info.IsDir() {
			if isLink && !st.opts.FollowLinks {
				continue
			}
			if st.opts.MaxDepth != phofmit.UnlimitedDepth && depth+1 > st.opts.MaxDepth {
				continue
			}
			id := idOf(abs, info)
			if st.visited[id] {
				w.logger.Warn("skipping symlink loop", "path", rel)
				continue
			}
			st.visited[id] = true
			err := w.walkDir(ctx, st, abs, rel, depth+1)
			delete(st.visited, id)
			if err != nil {
				return err
			}
			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}
		if !st.opts.Filter.Allow(rel) {
			continue
		}
		if err := st.fn(phofmit.WalkEntry{RelativePath: rel, AbsolutePath: abs, Info: info}); err != nil {
			return err
		}
	}
	return nil
}

// fileID identifies a directory independently of the path used to reach it.
type fileID struct {
	dev, ino uint64
	path     string
}

// pathID falls back to the fully resolved path when the platform exposes
// no inode numbers.
func pathID(p string) fileID {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return fileID{path: p}
}

// Compile-time check that OSWalker implements phofmit.Walker interface
var _ phofmit.Walker = (*OSWalker)(nil)
