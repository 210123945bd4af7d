package phofmit

import (
	"fmt"
	"strings"
)

// SnapshotVersion is the format version written into every snapshot.
const SnapshotVersion = "1.0"

// Checksum is a digest of a bounded window of a file's content.
type Checksum struct {
	Start        int64  `json:"start"`
	Length       int64  `json:"length"`
	ActualLength int64  `json:"actual-length"`
	Algo         string `json:"algo"`
	Value        string `json:"value"`
}

// String returns the printable form [algo:start:actual-length:value].
func (c Checksum) String() string {
	return fmt.Sprintf("[%s:%d:%d:%s]", c.Algo, c.Start, c.ActualLength, c.Value)
}

// ChecksumSummary joins the printable forms of checksums with commas.
func ChecksumSummary(checksums []Checksum) string {
	parts := make([]string, len(checksums))
	for i, c := range checksums {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// FileRecord describes one file of a snapshot. Path is relative to the
// snapshot's base path and always slash-separated. Size, Mtime and Checksums
// are only set when the matching key was enabled for the scan.
type FileRecord struct {
	Path         string     `json:"path"`
	AbsolutePath string     `json:"-"`
	Size         *int64     `json:"size"`
	Mtime        *int64     `json:"mtime"`
	Checksums    []Checksum `json:"checksums"`
}

// Snapshot is the persisted record of a directory tree at one point in time.
type Snapshot struct {
	Version       string        `json:"version"`
	Hostname      string        `json:"hostname"`
	Date          string        `json:"date"`
	BasePath      string        `json:"base-path"`
	ScannerConfig ScannerConfig `json:"scanner-config"`
	Files         []FileRecord  `json:"files"`
}

// MatchSide is a copy of the FileRecord fields a mover needs.
type MatchSide struct {
	Path            string `json:"path"`
	Size            *int64 `json:"size"`
	Mtime           *int64 `json:"mtime"`
	ChecksumSummary string `json:"checksum-summary"`
}

func newMatchSide(r *FileRecord) MatchSide {
	return MatchSide{
		Path:            r.Path,
		Size:            copyInt64(r.Size),
		Mtime:           copyInt64(r.Mtime),
		ChecksumSummary: ChecksumSummary(r.Checksums),
	}
}

// Describe renders the side as "path | Size: n | Time: n | Checksum: s",
// using "(unknown)" for attributes the scan did not capture.
func (s MatchSide) Describe() string {
	checksum := s.ChecksumSummary
	if checksum == "" {
		checksum = "(unknown)"
	}
	return fmt.Sprintf("%s | Size: %s | Time: %s | Checksum: %s",
		s.Path, formatOptional(s.Size), formatOptional(s.Mtime), checksum)
}

// Match pairs a target file with the single reference file it was identified as.
type Match struct {
	Reference MatchSide `json:"reference"`
	Target    MatchSide `json:"target"`
}

// AlreadyPlaced reports whether the target file is already at its reference path.
func (m Match) AlreadyPlaced() bool {
	return m.Reference.Path == m.Target.Path
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func formatOptional(v *int64) string {
	if v == nil {
		return "(unknown)"
	}
	return fmt.Sprintf("%d", *v)
}

// Int64 returns a pointer to v. Handy for building records in tests and tools.
func Int64(v int64) *int64 { return &v }
