package phofmit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// EncodeSnapshot writes snap as indented JSON.
func EncodeSnapshot(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot (or by older
// versions, whose scanner-config may lack newer keys).
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version == "" {
		return nil, fmt.Errorf("decoding snapshot: missing version")
	}
	if snap.BasePath == "" {
		return nil, fmt.Errorf("decoding snapshot: missing base-path")
	}
	if snap.ScannerConfig.BeginningChunkAlgo == "" {
		// No scanner-config object at all: apply the defaults.
		cfg, err := NormalizeConfig(RawScannerConfig{})
		if err != nil {
			return nil, err
		}
		snap.ScannerConfig = cfg
	}
	return &snap, nil
}

// CacheKey derives the scan cache key for a tree scanned with cfg.
func CacheKey(basePath string, cfg ScannerConfig) string {
	var buf bytes.Buffer
	buf.WriteString(basePath)
	buf.WriteByte(0)
	// Marshalling a struct of plain fields cannot fail.
	data, _ := json.Marshal(cfg)
	buf.Write(data)
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

var (
	slashRun   = regexp.MustCompile(`/`)
	nonWordRun = regexp.MustCompile(`[^\w]+`)
)

// SnapshotFilename expands a filename template. Supported placeholders are
// {hostname}, {path} (slashes become "__", other non-word runs "-") and {now}.
func SnapshotFilename(template, hostname, path string, now time.Time) string {
	p := slashRun.ReplaceAllString(path, "__")
	p = strings.Trim(nonWordRun.ReplaceAllString(p, "-"), "-")
	return strings.NewReplacer(
		"{hostname}", hostname,
		"{path}", p,
		"{now}", now.Format("2006-01-02_15-04-05"),
	).Replace(template)
}
