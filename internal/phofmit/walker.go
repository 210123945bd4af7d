package phofmit

import (
	"context"
	"io/fs"
)

// WalkOptions controls which entries a Walker visits.
type WalkOptions struct {
	IgnoreUnreadable bool
	FollowLinks      bool
	MaxDepth         int
	IgnoreHidden     bool
	Filter           *PathFilter
}

// WalkEntry is a regular file found by a Walker.
type WalkEntry struct {
	// RelativePath is relative to the walk root and slash-separated.
	RelativePath string
	AbsolutePath string
	// Info describes the file itself, following symlinks.
	Info fs.FileInfo
}

// Walker enumerates regular files under a root directory.
type Walker interface {
	// Walk calls fn for every surviving regular file in a deterministic
	// order. An error from fn stops the walk and is returned.
	Walk(ctx context.Context, root string, opts WalkOptions, fn func(WalkEntry) error) error
}

// WalkOptionsFor derives traversal options from a scanner config.
func WalkOptionsFor(cfg ScannerConfig) (WalkOptions, error) {
	filter, err := cfg.Filter()
	if err != nil {
		return WalkOptions{}, err
	}
	return WalkOptions{
		IgnoreUnreadable: cfg.IgnoreUnreadable,
		FollowLinks:      cfg.FollowLinks,
		MaxDepth:         cfg.MaxDepth,
		IgnoreHidden:     cfg.IgnoreHidden,
		Filter:           filter,
	}, nil
}
