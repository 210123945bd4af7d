package phofmit

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	// DefaultChunkSize is the default length of the leading checksum window.
	DefaultChunkSize int64 = 512 * 1024
	// DefaultChunkAlgo is the default checksum algorithm.
	DefaultChunkAlgo = "sha1"
	// UnlimitedDepth disables the traversal depth limit.
	UnlimitedDepth = -1
)

// Key identifies an attribute files can be matched on.
type Key string

const (
	KeySize     Key = "size"
	KeyMtime    Key = "mtime"
	KeyChecksum Key = "checksum"
	KeyFilename Key = "filename"
)

// ScannerConfig is the fully-populated configuration of a scan. It is only
// produced by NormalizeConfig, so every field holds a usable value.
type ScannerConfig struct {
	Include            []string `json:"include"`
	Exclude            []string `json:"exclude"`
	UseSize            bool     `json:"use-size"`
	UseMtime           bool     `json:"use-mtime"`
	UseChecksum        bool     `json:"use-checksum"`
	UseFilename        bool     `json:"use-filename"`
	BeginningChunkSize int64    `json:"beginning-chunk-size"`
	BeginningChunkAlgo string   `json:"beginning-chunk-algo"`
	IgnoreUnreadable   bool     `json:"ignore-unreadable"`
	FollowLinks        bool     `json:"follow-links"`
	MaxDepth           int      `json:"max-depth"`
	IgnoreHidden       bool     `json:"ignore-hidden"`
}

// RawScannerConfig holds scanner options as given by a user, a config file or
// an older snapshot. A nil field means "not specified".
type RawScannerConfig struct {
	Include            []string `json:"include,omitempty" toml:"include,omitempty"`
	Exclude            []string `json:"exclude,omitempty" toml:"exclude,omitempty"`
	UseSize            *bool    `json:"use-size,omitempty" toml:"use_size,omitempty"`
	UseMtime           *bool    `json:"use-mtime,omitempty" toml:"use_mtime,omitempty"`
	UseChecksum        *bool    `json:"use-checksum,omitempty" toml:"use_checksum,omitempty"`
	UseFilename        *bool    `json:"use-filename,omitempty" toml:"use_filename,omitempty"`
	BeginningChunkSize *int64   `json:"beginning-chunk-size,omitempty" toml:"beginning_chunk_size,omitempty"`
	BeginningChunkAlgo *string  `json:"beginning-chunk-algo,omitempty" toml:"beginning_chunk_algo,omitempty"`
	IgnoreUnreadable   *bool    `json:"ignore-unreadable,omitempty" toml:"ignore_unreadable,omitempty"`
	FollowLinks        *bool    `json:"follow-links,omitempty" toml:"follow_links,omitempty"`
	MaxDepth           *int     `json:"max-depth,omitempty" toml:"max_depth,omitempty"`
	IgnoreHidden       *bool    `json:"ignore-hidden,omitempty" toml:"ignore_hidden,omitempty"`
}

// NormalizeConfig fills defaults into raw and validates the result.
// Defaults: size, mtime and checksum on, filename off, 512 KiB sha1 window,
// no include/exclude patterns, unreadable directories skipped, links
// followed, unlimited depth, hidden entries ignored.
func NormalizeConfig(raw RawScannerConfig) (ScannerConfig, error) {
	cfg := ScannerConfig{
		Include:            append([]string{}, raw.Include...),
		Exclude:            append([]string{}, raw.Exclude...),
		UseSize:            boolOr(raw.UseSize, true),
		UseMtime:           boolOr(raw.UseMtime, true),
		UseChecksum:        boolOr(raw.UseChecksum, true),
		UseFilename:        boolOr(raw.UseFilename, false),
		BeginningChunkSize: DefaultChunkSize,
		BeginningChunkAlgo: DefaultChunkAlgo,
		IgnoreUnreadable:   boolOr(raw.IgnoreUnreadable, true),
		FollowLinks:        boolOr(raw.FollowLinks, true),
		MaxDepth:           UnlimitedDepth,
		IgnoreHidden:       boolOr(raw.IgnoreHidden, true),
	}
	if raw.BeginningChunkSize != nil {
		cfg.BeginningChunkSize = *raw.BeginningChunkSize
	}
	if raw.BeginningChunkAlgo != nil {
		cfg.BeginningChunkAlgo = strings.ToLower(strings.TrimSpace(*raw.BeginningChunkAlgo))
	}
	if raw.MaxDepth != nil {
		cfg.MaxDepth = *raw.MaxDepth
	}

	if cfg.BeginningChunkSize <= 0 {
		return ScannerConfig{}, fmt.Errorf("%w: beginning-chunk-size must be positive, got %d", ErrInvalidConfig, cfg.BeginningChunkSize)
	}
	if !SupportedAlgorithm(cfg.BeginningChunkAlgo) {
		return ScannerConfig{}, fmt.Errorf("%w: unsupported beginning-chunk-algo %q (supported: %s)",
			ErrInvalidConfig, cfg.BeginningChunkAlgo, strings.Join(Algorithms(), ", "))
	}
	if cfg.MaxDepth < UnlimitedDepth {
		return ScannerConfig{}, fmt.Errorf("%w: max-depth must be -1 (unlimited) or >= 0, got %d", ErrInvalidConfig, cfg.MaxDepth)
	}
	if _, err := NewPathFilter(cfg.Include, cfg.Exclude); err != nil {
		return ScannerConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Raw converts a normalized config back to its raw form, with every field set.
func (c ScannerConfig) Raw() RawScannerConfig {
	return RawScannerConfig{
		Include:            append([]string{}, c.Include...),
		Exclude:            append([]string{}, c.Exclude...),
		UseSize:            &c.UseSize,
		UseMtime:           &c.UseMtime,
		UseChecksum:        &c.UseChecksum,
		UseFilename:        &c.UseFilename,
		BeginningChunkSize: &c.BeginningChunkSize,
		BeginningChunkAlgo: &c.BeginningChunkAlgo,
		IgnoreUnreadable:   &c.IgnoreUnreadable,
		FollowLinks:        &c.FollowLinks,
		MaxDepth:           &c.MaxDepth,
		IgnoreHidden:       &c.IgnoreHidden,
	}
}

// Equal reports whether two configs produce comparable fingerprints and
// select the same files.
func (c ScannerConfig) Equal(o ScannerConfig) bool {
	return slices.Equal(c.Include, o.Include) &&
		slices.Equal(c.Exclude, o.Exclude) &&
		c.UseSize == o.UseSize &&
		c.UseMtime == o.UseMtime &&
		c.UseChecksum == o.UseChecksum &&
		c.UseFilename == o.UseFilename &&
		c.BeginningChunkSize == o.BeginningChunkSize &&
		c.BeginningChunkAlgo == o.BeginningChunkAlgo &&
		c.IgnoreUnreadable == o.IgnoreUnreadable &&
		c.FollowLinks == o.FollowLinks &&
		c.MaxDepth == o.MaxDepth &&
		c.IgnoreHidden == o.IgnoreHidden
}

// Covers reports whether a snapshot taken with c can be matched against a
// scan made with o. Both must select files the same way, and c must have
// recorded every attribute o fingerprints. Filenames are always recorded.
func (c ScannerConfig) Covers(o ScannerConfig) bool {
	if !slices.Equal(c.Include, o.Include) ||
		!slices.Equal(c.Exclude, o.Exclude) ||
		c.IgnoreUnreadable != o.IgnoreUnreadable ||
		c.FollowLinks != o.FollowLinks ||
		c.MaxDepth != o.MaxDepth ||
		c.IgnoreHidden != o.IgnoreHidden {
		return false
	}
	if (o.UseSize && !c.UseSize) || (o.UseMtime && !c.UseMtime) {
		return false
	}
	if o.UseChecksum {
		return c.UseChecksum &&
			c.BeginningChunkSize == o.BeginningChunkSize &&
			c.BeginningChunkAlgo == o.BeginningChunkAlgo
	}
	return true
}

// ActiveKeys returns the enabled matching keys in a fixed order.
func (c ScannerConfig) ActiveKeys() []Key {
	var keys []Key
	if c.UseSize {
		keys = append(keys, KeySize)
	}
	if c.UseMtime {
		keys = append(keys, KeyMtime)
	}
	if c.UseChecksum {
		keys = append(keys, KeyChecksum)
	}
	if c.UseFilename {
		keys = append(keys, KeyFilename)
	}
	return keys
}

// Filter compiles the include/exclude patterns. NormalizeConfig has already
// validated them, so an error here means the config was built by hand.
func (c ScannerConfig) Filter() (*PathFilter, error) {
	return NewPathFilter(c.Include, c.Exclude)
}

// UnmarshalJSON decodes a possibly partial scanner-config object (as written
// by older versions) and normalizes it.
func (c *ScannerConfig) UnmarshalJSON(data []byte) error {
	var raw RawScannerConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := NormalizeConfig(raw)
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// Merge returns r with every field set in over replacing r's value.
// Include and exclude lists from over are appended.
func (r RawScannerConfig) Merge(over RawScannerConfig) RawScannerConfig {
	out := r
	out.Include = append(append([]string{}, r.Include...), over.Include...)
	out.Exclude = append(append([]string{}, r.Exclude...), over.Exclude...)
	if over.UseSize != nil {
		out.UseSize = over.UseSize
	}
	if over.UseMtime != nil {
		out.UseMtime = over.UseMtime
	}
	if over.UseChecksum != nil {
		out.UseChecksum = over.UseChecksum
	}
	if over.UseFilename != nil {
		out.UseFilename = over.UseFilename
	}
	if over.BeginningChunkSize != nil {
		out.BeginningChunkSize = over.BeginningChunkSize
	}
	if over.BeginningChunkAlgo != nil {
		out.BeginningChunkAlgo = over.BeginningChunkAlgo
	}
	if over.IgnoreUnreadable != nil {
		out.IgnoreUnreadable = over.IgnoreUnreadable
	}
	if over.FollowLinks != nil {
		out.FollowLinks = over.FollowLinks
	}
	if over.MaxDepth != nil {
		out.MaxDepth = over.MaxDepth
	}
	if over.IgnoreHidden != nil {
		out.IgnoreHidden = over.IgnoreHidden
	}
	return out
}

// ParseOptions parses "key=value" scanner options as given on the command
// line. Keys may use dashes or underscores. include and exclude may be
// repeated. beginning-chunk-size accepts plain bytes or sizes like "1MiB".
func ParseOptions(options []string) (RawScannerConfig, error) {
	var raw RawScannerConfig
	for _, opt := range options {
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			return RawScannerConfig{}, fmt.Errorf("%w: option %q is not in key=value form", ErrInvalidConfig, opt)
		}
		key = strings.ReplaceAll(strings.TrimSpace(strings.ToLower(key)), "_", "-")
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "include":
			raw.Include = append(raw.Include, value)
		case "exclude":
			raw.Exclude = append(raw.Exclude, value)
		case "use-size":
			raw.UseSize, err = parseBool(value)
		case "use-mtime":
			raw.UseMtime, err = parseBool(value)
		case "use-checksum":
			raw.UseChecksum, err = parseBool(value)
		case "use-filename":
			raw.UseFilename, err = parseBool(value)
		case "ignore-unreadable":
			raw.IgnoreUnreadable, err = parseBool(value)
		case "follow-links":
			raw.FollowLinks, err = parseBool(value)
		case "ignore-hidden":
			raw.IgnoreHidden, err = parseBool(value)
		case "beginning-chunk-algo":
			v := value
			raw.BeginningChunkAlgo = &v
		case "beginning-chunk-size":
			var n uint64
			n, err = humanize.ParseBytes(value)
			if err == nil {
				size := int64(n)
				raw.BeginningChunkSize = &size
			}
		case "max-depth", "depth":
			var n int
			n, err = strconv.Atoi(value)
			if err == nil {
				raw.MaxDepth = &n
			}
		default:
			return RawScannerConfig{}, fmt.Errorf("%w: unknown option %q", ErrInvalidConfig, key)
		}
		if err != nil {
			return RawScannerConfig{}, fmt.Errorf("%w: option %s: %v", ErrInvalidConfig, key, err)
		}
	}
	return raw, nil
}

// parseBool accepts strconv.ParseBool forms plus yes/no and on/off.
func parseBool(value string) (*bool, error) {
	var b bool
	switch strings.ToLower(value) {
	case "yes", "y", "on":
		b = true
	case "no", "n", "off":
		b = false
	default:
		var err error
		if b, err = strconv.ParseBool(value); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
