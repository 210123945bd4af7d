package phofmit_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"phofmit/internal/phofmit"
)

func TestNormalizeConfig_Defaults(t *testing.T) {
	cfg, err := phofmit.NormalizeConfig(phofmit.RawScannerConfig{})
	if err != nil {
		t.Fatalf("NormalizeConfig() error = %v", err)
	}
	want := phofmit.ScannerConfig{
		Include:            []string{},
		Exclude:            []string{},
		UseSize:            true,
		UseMtime:           true,
		UseChecksum:        true,
		UseFilename:        false,
		BeginningChunkSize: 512 * 1024,
		BeginningChunkAlgo: "sha1",
		IgnoreUnreadable:   true,
		FollowLinks:        true,
		MaxDepth:           phofmit.UnlimitedDepth,
		IgnoreHidden:       true,
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("NormalizeConfig() = %+v, want %+v", cfg, want)
	}
	if got := cfg.ActiveKeys(); !reflect.DeepEqual(got, []phofmit.Key{phofmit.KeySize, phofmit.KeyMtime, phofmit.KeyChecksum}) {
		t.Errorf("ActiveKeys() = %v", got)
	}
}

func TestNormalizeConfig_Invalid(t *testing.T) {
	zero := int64(0)
	algo := "crc64"
	depth := -2
	tests := []struct {
		name string
		raw  phofmit.RawScannerConfig
	}{
		{name: "zero chunk size", raw: phofmit.RawScannerConfig{BeginningChunkSize: &zero}},
		{name: "unknown algorithm", raw: phofmit.RawScannerConfig{BeginningChunkAlgo: &algo}},
		{name: "depth below unlimited", raw: phofmit.RawScannerConfig{MaxDepth: &depth}},
		{name: "bad include regex", raw: phofmit.RawScannerConfig{Include: []string{"/[/"}}},
		{name: "empty exclude", raw: phofmit.RawScannerConfig{Exclude: []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := phofmit.NormalizeConfig(tt.raw)
			if !errors.Is(err, phofmit.ErrInvalidConfig) {
				t.Errorf("NormalizeConfig() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNormalizeConfig_AlgoCase(t *testing.T) {
	algo := " SHA256 "
	cfg, err := phofmit.NormalizeConfig(phofmit.RawScannerConfig{BeginningChunkAlgo: &algo})
	if err != nil {
		t.Fatalf("NormalizeConfig() error = %v", err)
	}
	if cfg.BeginningChunkAlgo != "sha256" {
		t.Errorf("BeginningChunkAlgo = %q, want sha256", cfg.BeginningChunkAlgo)
	}
}

func TestParseOptions(t *testing.T) {
	raw, err := phofmit.ParseOptions([]string{
		"use-filename=yes",
		"use_mtime=false",
		"beginning-chunk-size=1MiB",
		"beginning-chunk-algo=md5",
		"include=2023",
		"include=/\\.jpg$/",
		"depth=2",
		"FOLLOW-LINKS=0",
		"ignore_hidden=off",
	})
	if err != nil {
		t.Fatalf("ParseOptions() error = %v", err)
	}
	cfg, err := phofmit.NormalizeConfig(raw)
	if err != nil {
		t.Fatalf("NormalizeConfig() error = %v", err)
	}
	if !cfg.UseFilename || cfg.UseMtime || !cfg.UseSize {
		t.Errorf("keys = size:%v mtime:%v filename:%v", cfg.UseSize, cfg.UseMtime, cfg.UseFilename)
	}
	if cfg.BeginningChunkSize != 1<<20 {
		t.Errorf("BeginningChunkSize = %d, want %d", cfg.BeginningChunkSize, 1<<20)
	}
	if cfg.BeginningChunkAlgo != "md5" {
		t.Errorf("BeginningChunkAlgo = %q", cfg.BeginningChunkAlgo)
	}
	if !reflect.DeepEqual(cfg.Include, []string{"2023", `/\.jpg$/`}) {
		t.Errorf("Include = %v", cfg.Include)
	}
	if cfg.MaxDepth != 2 || cfg.FollowLinks || cfg.IgnoreHidden {
		t.Errorf("MaxDepth = %d, FollowLinks = %v, IgnoreHidden = %v", cfg.MaxDepth, cfg.FollowLinks, cfg.IgnoreHidden)
	}

	for _, bad := range []string{"use-size", "use-size=maybe", "colour=blue", "depth=x", "beginning-chunk-size=lots"} {
		if _, err := phofmit.ParseOptions([]string{bad}); !errors.Is(err, phofmit.ErrInvalidConfig) {
			t.Errorf("ParseOptions(%q) error = %v, want ErrInvalidConfig", bad, err)
		}
	}
}

func TestRawScannerConfig_Merge(t *testing.T) {
	base, _ := phofmit.ParseOptions([]string{"use-size=false", "exclude=tmp", "depth=3"})
	over, _ := phofmit.ParseOptions([]string{"use-size=true", "exclude=cache"})

	merged := base.Merge(over)
	cfg, err := phofmit.NormalizeConfig(merged)
	if err != nil {
		t.Fatalf("NormalizeConfig() error = %v", err)
	}
	if !cfg.UseSize {
		t.Error("override did not replace use-size")
	}
	if cfg.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3 from base", cfg.MaxDepth)
	}
	if !reflect.DeepEqual(cfg.Exclude, []string{"tmp", "cache"}) {
		t.Errorf("Exclude = %v, want [tmp cache]", cfg.Exclude)
	}
	if len(base.Exclude) != 1 {
		t.Error("Merge() modified its receiver")
	}
}

func TestScannerConfig_RawRoundTrip(t *testing.T) {
	raw, _ := phofmit.ParseOptions([]string{"use-filename=yes", "include=x", "beginning-chunk-algo=xxh64"})
	cfg, err := phofmit.NormalizeConfig(raw)
	if err != nil {
		t.Fatalf("NormalizeConfig() error = %v", err)
	}
	again, err := phofmit.NormalizeConfig(cfg.Raw())
	if err != nil {
		t.Fatalf("NormalizeConfig(Raw()) error = %v", err)
	}
	if !again.Equal(cfg) {
		t.Errorf("Raw() round trip = %+v, want %+v", again, cfg)
	}

	other := cfg
	other.UseFilename = false
	if cfg.Equal(other) {
		t.Error("Equal() ignored use-filename")
	}
}

func TestScannerConfig_UnmarshalPartial(t *testing.T) {
	var cfg phofmit.ScannerConfig
	if err := json.Unmarshal([]byte(`{"use-checksum":false,"max-depth":1}`), &cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.UseChecksum || !cfg.UseSize || cfg.MaxDepth != 1 || cfg.BeginningChunkAlgo != "sha1" {
		t.Errorf("partial config = %+v", cfg)
	}

	if err := json.Unmarshal([]byte(`{"beginning-chunk-size":-5}`), &cfg); err == nil {
		t.Error("Unmarshal() expected error for negative chunk size")
	}
}

func TestScannerConfig_Covers(t *testing.T) {
	tests := []struct {
		name    string
		options []string
		want    bool
	}{
		{name: "same config", want: true},
		{name: "filename key added", options: []string{"use-filename=true"}, want: true},
		{name: "mtime key dropped", options: []string{"use-mtime=false"}, want: true},
		{name: "checksum dropped with other window", options: []string{"use-checksum=false", "beginning-chunk-size=1KiB"}, want: true},
		{name: "other checksum window", options: []string{"beginning-chunk-size=1KiB"}, want: false},
		{name: "other algorithm", options: []string{"beginning-chunk-algo=md5"}, want: false},
		{name: "extra exclude", options: []string{"exclude=.tmp"}, want: false},
		{name: "hidden files selected", options: []string{"ignore-hidden=false"}, want: false},
		{name: "depth limited", options: []string{"max-depth=1"}, want: false},
	}

	reference, err := phofmit.NormalizeConfig(phofmit.RawScannerConfig{})
	if err != nil {
		t.Fatalf("NormalizeConfig() error = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := phofmit.ParseOptions(tt.options)
			if err != nil {
				t.Fatalf("ParseOptions() error = %v", err)
			}
			scanned, err := phofmit.NormalizeConfig(reference.Raw().Merge(raw))
			if err != nil {
				t.Fatalf("NormalizeConfig() error = %v", err)
			}
			if got := reference.Covers(scanned); got != tt.want {
				t.Errorf("Covers() = %v, want %v", got, tt.want)
			}
		})
	}

	off := false
	noMtime, err := phofmit.NormalizeConfig(phofmit.RawScannerConfig{UseMtime: &off})
	if err != nil {
		t.Fatalf("NormalizeConfig() error = %v", err)
	}
	if noMtime.Covers(reference) {
		t.Error("Covers() = true for a reference that never recorded mtimes")
	}
}
