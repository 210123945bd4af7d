package phofmit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Service is the orchestration layer that coordinates scanning, matching and
// moving for the CLI.
type Service struct {
	scanner  *Scanner
	logger   Logger
	clock    Clock
	cache    ScanCache
	confirm  Confirmer
	progress Progress
	verbose  bool
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithCache lets mirror runs reuse and record target snapshots.
func WithCache(c ScanCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithConfirmer sets the port used to ask the operator whether to continue
// after a scanner config mismatch.
func WithConfirmer(c Confirmer) ServiceOption {
	return func(s *Service) { s.confirm = c }
}

// WithMatchProgress reports matching progress to p.
func WithMatchProgress(p Progress) ServiceOption {
	return func(s *Service) { s.progress = p }
}

// WithVerbose makes ambiguity warnings list every candidate.
func WithVerbose(v bool) ServiceOption {
	return func(s *Service) { s.verbose = v }
}

// NewService creates a Service around scanner.
func NewService(scanner *Scanner, logger Logger, clock Clock, opts ...ServiceOption) *Service {
	s := &Service{
		scanner:  scanner,
		logger:   logger,
		clock:    clock,
		confirm:  AlwaysYes,
		progress: NopProgress{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot scans path with the options in raw (defaults fill the rest).
func (s *Service) Snapshot(ctx context.Context, path string, raw RawScannerConfig) (*Snapshot, error) {
	cfg, err := NormalizeConfig(raw)
	if err != nil {
		return nil, err
	}
	return s.scanner.Scan(ctx, path, cfg)
}

// MirrorRequest describes one mirror run.
type MirrorRequest struct {
	Reference *Snapshot
	// Target is used as-is when set; otherwise TargetPath is scanned.
	Target     *Snapshot
	TargetPath string
	// Overrides are applied on top of the reference's scanner config, both
	// for scanning the target and for matching.
	Overrides RawScannerConfig
	// UseCache reads and records the target snapshot in the scan cache.
	UseCache bool
	Mover    Mover
}

// MirrorResult summarizes a mirror run.
type MirrorResult struct {
	Target   *Snapshot
	Diff     *DiffResult
	Outcomes map[Outcome]int
	Moved    int
	CacheHit bool
	Elapsed  time.Duration
}

// Mirror matches the target tree against the reference snapshot and hands
// every match to the request's Mover, in target order.
func (s *Service) Mirror(ctx context.Context, req MirrorRequest) (*MirrorResult, error) {
	start := s.clock.Now()
	if req.Reference == nil {
		return nil, fmt.Errorf("%w: no reference snapshot", ErrInvalidConfig)
	}
	if req.Mover == nil {
		return nil, fmt.Errorf("%w: no mover", ErrInvalidConfig)
	}

	cfg, err := NormalizeConfig(req.Reference.ScannerConfig.Raw().Merge(req.Overrides))
	if err != nil {
		return nil, err
	}

	result := &MirrorResult{}
	cacheKey := ""
	target := req.Target
	if target == nil {
		basePath, err := CanonicalDir(req.TargetPath)
		if err != nil {
			return nil, err
		}
		if req.UseCache && s.cache != nil {
			cacheKey = CacheKey(basePath, cfg)
			target, err = s.cache.Get(cacheKey)
			if err != nil {
				s.logger.Warn("scan cache unavailable, rescanning", "error", err)
				target = nil
			}
			result.CacheHit = target != nil
		}
		if target == nil {
			target, err = s.scanner.Scan(ctx, basePath, cfg)
			if err != nil {
				return nil, err
			}
			if cacheKey != "" {
				if err := s.cache.Put(cacheKey, target); err != nil {
					s.logger.Warn("could not record scan in cache", "error", err)
				}
			}
		} else {
			s.logger.Info("using cached target snapshot", "path", basePath, "date", target.Date)
		}
	}
	result.Target = target

	diff, err := s.diff(req.Reference, target, req.Overrides, req.Target == nil)
	if err != nil {
		return nil, err
	}
	result.Diff = diff

	result.Outcomes, result.Moved, err = s.Apply(ctx, target.BasePath, diff.Matches, req.Mover)
	if err != nil {
		return nil, err
	}

	// Moved files make the cached layout stale.
	if result.Moved > 0 && s.cache != nil {
		key := cacheKey
		if key == "" {
			key = CacheKey(target.BasePath, target.ScannerConfig)
		}
		if err := s.cache.Delete(key); err != nil {
			s.logger.Warn("could not invalidate scan cache", "error", err)
		}
	}

	result.Elapsed = s.clock.Now().Sub(start)
	s.logger.Info("mirror complete", "matches", len(diff.Matches), "moved", result.Moved, "elapsed", result.Elapsed)
	return result, nil
}

// Apply hands every match to mover, one at a time in match order. Both paths
// are resolved under targetBase: the file's current target path and its
// reference path. It returns the tally of outcomes and the number of files
// actually moved.
func (s *Service) Apply(ctx context.Context, targetBase string, matches []Match, mover Mover) (map[Outcome]int, int, error) {
	outcomes := make(map[Outcome]int)
	moved := 0
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return outcomes, moved, fmt.Errorf("mirror interrupted: %w", err)
		}
		outcome := mover.MoveFile(
			filepath.Join(targetBase, filepath.FromSlash(m.Target.Path)),
			filepath.Join(targetBase, filepath.FromSlash(m.Reference.Path)),
			m,
		)
		outcomes[outcome]++
		if outcome.Moved() {
			moved++
		}
	}
	return outcomes, moved, nil
}

// Diff checks that both snapshots were taken with the same scanner config
// (asking the operator when they were not) and matches target against
// reference with the reference's config plus overrides.
func (s *Service) Diff(reference, target *Snapshot, overrides RawScannerConfig) (*DiffResult, error) {
	return s.diff(reference, target, overrides, false)
}

// DiffPath scans path with the reference's scanner config plus overrides and
// matches the result against reference.
func (s *Service) DiffPath(ctx context.Context, reference *Snapshot, path string, overrides RawScannerConfig) (*DiffResult, error) {
	if reference == nil {
		return nil, fmt.Errorf("%w: no reference snapshot", ErrInvalidConfig)
	}
	target, err := s.Snapshot(ctx, path, reference.ScannerConfig.Raw().Merge(overrides))
	if err != nil {
		return nil, err
	}
	return s.diff(reference, target, overrides, true)
}

// diff matches target against reference. scanned is set when target was
// just scanned from the reference's own config, so only settings that change
// file selection or fingerprints need to agree.
func (s *Service) diff(reference, target *Snapshot, overrides RawScannerConfig, scanned bool) (*DiffResult, error) {
	if reference == nil || target == nil {
		return nil, fmt.Errorf("%w: both snapshots are required", ErrInvalidConfig)
	}
	if err := s.checkConsistency(reference, target, scanned); err != nil {
		return nil, err
	}
	cfg, err := NormalizeConfig(reference.ScannerConfig.Raw().Merge(overrides))
	if err != nil {
		return nil, err
	}
	return NewMatcher(s.logger, s.progress, s.verbose).Diff(reference, target, cfg), nil
}

func (s *Service) checkConsistency(reference, target *Snapshot, scanned bool) error {
	if reference.ScannerConfig.Equal(target.ScannerConfig) {
		return nil
	}
	if scanned && reference.ScannerConfig.Covers(target.ScannerConfig) {
		return nil
	}
	s.logger.Warn("reference and target snapshots were taken with different scanner configs",
		"reference", fmt.Sprintf("%+v", reference.ScannerConfig),
		"target", fmt.Sprintf("%+v", target.ScannerConfig))
	if !s.confirm("Scanner configs differ, files may not be comparable. Continue anyway?") {
		return ErrConfigMismatch
	}
	return nil
}

// IsConfigError reports whether err is a configuration-level failure that
// aborted a run before any file was processed.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidPath) || errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrConfigMismatch) || errors.Is(err, ErrConflictingModes)
}
