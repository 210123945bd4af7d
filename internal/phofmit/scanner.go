package phofmit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Scanner walks directory trees and fingerprints the files it finds.
type Scanner struct {
	walker   Walker
	logger   Logger
	clock    Clock
	progress Progress
	hostname string
	workers  int
}

// ScannerOption customizes a Scanner.
type ScannerOption func(*Scanner)

// WithProgress reports discovery and fingerprinting progress to p.
func WithProgress(p Progress) ScannerOption {
	return func(s *Scanner) { s.progress = p }
}

// WithWorkers bounds the number of files fingerprinted concurrently.
// Values below 1 are ignored.
func WithWorkers(n int) ScannerOption {
	return func(s *Scanner) {
		if n >= 1 {
			s.workers = n
		}
	}
}

// WithHostname overrides the hostname recorded in snapshots.
func WithHostname(name string) ScannerOption {
	return func(s *Scanner) { s.hostname = name }
}

// NewScanner creates a Scanner that enumerates files with walker.
func NewScanner(walker Walker, logger Logger, clock Clock, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		walker:   walker,
		logger:   logger,
		clock:    clock,
		progress: NopProgress{},
		workers:  runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hostname == "" {
		if h, err := os.Hostname(); err == nil {
			s.hostname = h
		}
	}
	return s
}

// Scan builds a Snapshot of the regular files under rootPath.
// Files that cannot be fingerprinted are reported and left out; only an
// unusable root or a cancelled context fails the scan.
func (s *Scanner) Scan(ctx context.Context, rootPath string, cfg ScannerConfig) (*Snapshot, error) {
	basePath, err := CanonicalDir(rootPath)
	if err != nil {
		return nil, err
	}
	opts, err := WalkOptionsFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s.logger.Info("scanning", "path", basePath)

	var entries []WalkEntry
	s.progress.Start("discovering", -1)
	err = s.walker.Walk(ctx, basePath, opts, func(e WalkEntry) error {
		entries = append(entries, e)
		s.progress.Step(e.RelativePath)
		return nil
	})
	s.progress.Finish()
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", basePath, err)
	}

	records, err := s.fingerprint(ctx, entries, cfg)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		s.logger.Warn("no files found", "path", basePath)
	} else {
		s.logger.Info("files analyzed", "count", len(records))
	}

	return &Snapshot{
		Version:       SnapshotVersion,
		Hostname:      s.hostname,
		Date:          s.clock.Now().Format(time.RFC3339),
		BasePath:      basePath,
		ScannerConfig: cfg,
		Files:         records,
	}, nil
}

// fingerprint builds one record per entry on a bounded worker pool. Results
// land in per-entry slots so the output keeps the enumeration order.
func (s *Scanner) fingerprint(ctx context.Context, entries []WalkEntry, cfg ScannerConfig) ([]FileRecord, error) {
	slots := make([]*FileRecord, len(entries))

	var mu sync.Mutex
	s.progress.Start("analyzing", len(entries))
	defer s.progress.Finish()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range entries {
		entry := entries[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			record, err := s.scanFile(entry, cfg)
			mu.Lock()
			defer mu.Unlock()
			s.progress.Step(entry.RelativePath)
			if err != nil {
				s.logger.Warn("skipping file", "path", entry.RelativePath, "error", err)
				return nil
			}
			slots[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	records := make([]FileRecord, 0, len(entries))
	for _, r := range slots {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, nil
}

// scanFile captures the attributes enabled in cfg for a single file.
func (s *Scanner) scanFile(entry WalkEntry, cfg ScannerConfig) (*FileRecord, error) {
	record := &FileRecord{
		Path:         entry.RelativePath,
		AbsolutePath: entry.AbsolutePath,
		Checksums:    []Checksum{},
	}
	if cfg.UseSize {
		record.Size = Int64(entry.Info.Size())
	}
	if cfg.UseMtime {
		record.Mtime = Int64(entry.Info.ModTime().Unix())
	}
	if cfg.UseChecksum {
		c, err := ExtractChecksum(entry.AbsolutePath, cfg.BeginningChunkSize, cfg.BeginningChunkAlgo)
		if err != nil {
			return nil, fmt.Errorf("extracting checksum: %w", err)
		}
		record.Checksums = append(record.Checksums, c)
	}
	return record, nil
}

// CanonicalDir resolves path to an absolute, symlink-free directory path.
func CanonicalDir(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %s: %v", ErrInvalidPath, path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrInvalidPath, path)
		}
		return "", fmt.Errorf("%w: resolving %s: %v", ErrInvalidPath, path, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", ErrInvalidPath, path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, path)
	}
	return resolved, nil
}
