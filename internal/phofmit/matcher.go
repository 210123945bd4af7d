package phofmit

import (
	"fmt"
	"path"
	"sort"
)

// handle is the identity of a reference record inside a referenceIndex.
// Records with identical field values still get distinct handles.
type handle int

type checksumKey struct {
	start        int64
	actualLength int64
	value        string
}

// referenceIndex maps attribute values of reference records to the handles
// of every record carrying that value. It is built once and then only read.
type referenceIndex struct {
	records    []*FileRecord
	bySize     map[int64][]handle
	byMtime    map[int64][]handle
	byChecksum map[checksumKey][]handle
	byFilename map[string][]handle
}

// Ambiguity describes a target file that matched several reference files.
type Ambiguity struct {
	TargetPath     string
	CandidatePaths []string
}

// DiffResult is the outcome of comparing a target snapshot to a reference.
type DiffResult struct {
	// Matches holds one entry per uniquely identified target file, in target order.
	Matches []Match
	// Ambiguous lists target files left unresolved because several reference
	// files matched them.
	Ambiguous []Ambiguity
	// Unmatched lists target files no reference file matched.
	Unmatched []string
	// Skipped counts malformed records that were ignored.
	Skipped int
}

// Matcher identifies target files by comparing their attributes with those of
// a reference snapshot.
type Matcher struct {
	logger   Logger
	progress Progress
	verbose  bool
}

// NewMatcher creates a Matcher. When verbose is set, ambiguity warnings list
// every candidate reference path.
func NewMatcher(logger Logger, progress Progress, verbose bool) *Matcher {
	if progress == nil {
		progress = NopProgress{}
	}
	return &Matcher{logger: logger, progress: progress, verbose: verbose}
}

// Diff matches every target file against the reference snapshot using the
// keys enabled in cfg. A target file is matched only when exactly one
// reference file agrees with it on every enabled key.
func (m *Matcher) Diff(reference, target *Snapshot, cfg ScannerConfig) *DiffResult {
	result := &DiffResult{}
	keys := cfg.ActiveKeys()
	if len(keys) == 0 {
		m.logger.Warn("no matching key enabled, no file can be matched")
		for _, f := range target.Files {
			result.Unmatched = append(result.Unmatched, f.Path)
		}
		return result
	}

	idx := m.buildIndex(reference, cfg, result)

	m.progress.Start("matching", len(target.Files))
	defer m.progress.Finish()

	for i := range target.Files {
		file := &target.Files[i]
		m.progress.Step(file.Path)

		if file.Path == "" {
			m.logger.Warn("skipping malformed target record", "index", i, "error", "empty path")
			result.Skipped++
			continue
		}

		candidates := idx.candidates(file, cfg)
		switch len(candidates) {
		case 0:
			result.Unmatched = append(result.Unmatched, file.Path)
		case 1:
			ref := idx.records[candidates[0]]
			result.Matches = append(result.Matches, Match{
				Reference: newMatchSide(ref),
				Target:    newMatchSide(file),
			})
		default:
			amb := Ambiguity{TargetPath: file.Path}
			for _, h := range candidates {
				amb.CandidatePaths = append(amb.CandidatePaths, idx.records[h].Path)
			}
			result.Ambiguous = append(result.Ambiguous, amb)
			m.reportAmbiguity(amb)
		}
	}

	m.logger.Info("diff complete",
		"matches", len(result.Matches),
		"ambiguous", len(result.Ambiguous),
		"unmatched", len(result.Unmatched))
	return result
}

func (m *Matcher) reportAmbiguity(amb Ambiguity) {
	msg := fmt.Sprintf("multiple matching files returned for %s, ignoring", amb.TargetPath)
	if m.verbose {
		m.logger.Warn(msg, "path", amb.TargetPath, "candidates", amb.CandidatePaths)
		return
	}
	m.logger.Warn(msg, "path", amb.TargetPath, "candidates", len(amb.CandidatePaths))
}

// buildIndex places every well-formed reference record into the arena and the
// per-key indices.
func (m *Matcher) buildIndex(reference *Snapshot, cfg ScannerConfig, result *DiffResult) *referenceIndex {
	idx := &referenceIndex{
		bySize:     make(map[int64][]handle),
		byMtime:    make(map[int64][]handle),
		byChecksum: make(map[checksumKey][]handle),
		byFilename: make(map[string][]handle),
	}
	seen := make(map[string]bool, len(reference.Files))

	for i := range reference.Files {
		file := &reference.Files[i]
		if file.Path == "" {
			m.logger.Warn("skipping malformed reference record", "index", i, "error", "empty path")
			result.Skipped++
			continue
		}
		if seen[file.Path] {
			m.logger.Warn("skipping duplicate reference record", "path", file.Path)
			result.Skipped++
			continue
		}
		seen[file.Path] = true

		h := handle(len(idx.records))
		idx.records = append(idx.records, file)

		if cfg.UseSize && file.Size != nil {
			idx.bySize[*file.Size] = append(idx.bySize[*file.Size], h)
		}
		if cfg.UseMtime && file.Mtime != nil {
			idx.byMtime[*file.Mtime] = append(idx.byMtime[*file.Mtime], h)
		}
		if cfg.UseChecksum {
			for _, c := range file.Checksums {
				k := keyOf(c)
				bucket := idx.byChecksum[k]
				// A record lists each handle once even if two of its
				// checksums share a key.
				if n := len(bucket); n == 0 || bucket[n-1] != h {
					idx.byChecksum[k] = append(bucket, h)
				}
			}
		}
		if cfg.UseFilename {
			name := path.Base(file.Path)
			idx.byFilename[name] = append(idx.byFilename[name], h)
		}
	}
	return idx
}

func keyOf(c Checksum) checksumKey {
	return checksumKey{start: c.Start, actualLength: c.ActualLength, value: c.Value}
}

// candidates returns the handles of the reference records agreeing with file
// on every enabled key, in reference order.
func (idx *referenceIndex) candidates(file *FileRecord, cfg ScannerConfig) []handle {
	var sets [][]handle
	if cfg.UseSize {
		if file.Size == nil {
			return nil
		}
		sets = append(sets, idx.bySize[*file.Size])
	}
	if cfg.UseMtime {
		if file.Mtime == nil {
			return nil
		}
		sets = append(sets, idx.byMtime[*file.Mtime])
	}
	if cfg.UseChecksum {
		if len(file.Checksums) == 0 {
			return nil
		}
		// Every checksum entry of the target must resolve to an
		// overlapping candidate set.
		for _, c := range file.Checksums {
			sets = append(sets, idx.byChecksum[keyOf(c)])
		}
	}
	if cfg.UseFilename {
		sets = append(sets, idx.byFilename[path.Base(file.Path)])
	}
	return intersect(sets)
}

// intersect returns the handles present in every set, sorted ascending.
func intersect(sets [][]handle) []handle {
	if len(sets) == 0 {
		return nil
	}
	sort.Slice(sets, func(i, j int) bool { return len(sets[i]) < len(sets[j]) })
	if len(sets[0]) == 0 {
		return nil
	}

	counts := make(map[handle]int, len(sets[0]))
	for _, h := range sets[0] {
		counts[h] = 1
	}
	for _, set := range sets[1:] {
		for _, h := range set {
			if c, ok := counts[h]; ok && c > 0 {
				counts[h] = c + 1
			}
		}
		for h, c := range counts {
			if c < 2 {
				delete(counts, h)
			} else {
				counts[h] = 1
			}
		}
		if len(counts) == 0 {
			return nil
		}
	}

	out := make([]handle, 0, len(counts))
	for h := range counts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
