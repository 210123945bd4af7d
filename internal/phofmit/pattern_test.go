package phofmit_test

import (
	"testing"

	"phofmit/internal/phofmit"
)

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{name: "literal substring", pattern: "2023", path: "photos/2023/a.jpg", want: true},
		{name: "literal no match", pattern: "2024", path: "photos/2023/a.jpg", want: false},
		{name: "literal dot is not a wildcard", pattern: ".jpg", path: "a_jpg", want: false},
		{name: "slash regex", pattern: `/\.jpe?g$/`, path: "a/b.jpeg", want: true},
		{name: "regex flags", pattern: `/\.JPG$/i`, path: "a/b.jpg", want: true},
		{name: "regex without flag is case sensitive", pattern: `/\.JPG$/`, path: "a/b.jpg", want: false},
		{name: "hash delimiter", pattern: `#^raw/#`, path: "raw/x.cr2", want: true},
		{name: "brace delimiter", pattern: `{^raw/}`, path: "x/raw/y", want: false},
		{name: "unknown trailing flag is a literal", pattern: "/a/z", path: "x/a/z", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := phofmit.CompilePattern(tt.pattern)
			if err != nil {
				t.Fatalf("CompilePattern(%q) error = %v", tt.pattern, err)
			}
			if got := p.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
			if p.String() != tt.pattern {
				t.Errorf("String() = %q, want %q", p.String(), tt.pattern)
			}
		})
	}
}

func TestCompilePattern_Errors(t *testing.T) {
	for _, raw := range []string{"", `/(unclosed/`} {
		if _, err := phofmit.CompilePattern(raw); err == nil {
			t.Errorf("CompilePattern(%q) expected error", raw)
		}
	}
}

func TestPathFilter_Allow(t *testing.T) {
	f, err := phofmit.NewPathFilter([]string{`/\.jpg$/`, "raw/"}, []string{"trash"})
	if err != nil {
		t.Fatalf("NewPathFilter() error = %v", err)
	}
	tests := map[string]bool{
		"a.jpg":           true,
		"raw/a.cr2":       true,
		"a.png":           false,
		"trash/a.jpg":     false,
		"raw/trash/a.cr2": false,
	}
	for path, want := range tests {
		if got := f.Allow(path); got != want {
			t.Errorf("Allow(%q) = %v, want %v", path, got, want)
		}
	}

	var none *phofmit.PathFilter
	if !none.Allow("anything") {
		t.Error("nil filter should allow everything")
	}
}
