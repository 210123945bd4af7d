package phofmit_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"phofmit/internal/phofmit"
	"phofmit/internal/testutil"
)

func TestExtractChecksum(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("0123456789", 10)
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("window shorter than file", func(t *testing.T) {
		t.Parallel()
		c, err := phofmit.ExtractChecksum(path, 10, "sha1")
		if err != nil {
			t.Fatalf("ExtractChecksum() error = %v", err)
		}
		want := phofmit.Checksum{Start: 0, Length: 10, ActualLength: 10, Algo: "sha1", Value: testutil.SHA1Hex([]byte("0123456789"))}
		if c != want {
			t.Errorf("ExtractChecksum() = %+v, want %+v", c, want)
		}
	})

	t.Run("window longer than file", func(t *testing.T) {
		t.Parallel()
		c, err := phofmit.ExtractChecksum(path, 4096, "sha1")
		if err != nil {
			t.Fatalf("ExtractChecksum() error = %v", err)
		}
		if c.Length != 4096 || c.ActualLength != 100 {
			t.Errorf("Length/ActualLength = %d/%d, want 4096/100", c.Length, c.ActualLength)
		}
		if c.Value != testutil.SHA1Hex([]byte(content)) {
			t.Errorf("Value = %s, want digest of whole file", c.Value)
		}
	})

	t.Run("every algorithm", func(t *testing.T) {
		t.Parallel()
		for _, algo := range phofmit.Algorithms() {
			c, err := phofmit.ExtractChecksum(path, 64, algo)
			if err != nil {
				t.Errorf("ExtractChecksum(%s) error = %v", algo, err)
				continue
			}
			if c.Value == "" || c.Algo != algo {
				t.Errorf("ExtractChecksum(%s) = %+v", algo, c)
			}
		}
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		if _, err := phofmit.ExtractChecksum(path, 10, "rot13"); err == nil {
			t.Error("ExtractChecksum() expected error for unknown algorithm")
		}
		if _, err := phofmit.ExtractChecksum(path, -1, "sha1"); err == nil {
			t.Error("ExtractChecksum() expected error for negative window")
		}
		if _, err := phofmit.ExtractChecksum(filepath.Join(dir, "missing"), 10, "sha1"); err == nil {
			t.Error("ExtractChecksum() expected error for missing file")
		}
	})
}

func TestChecksumString(t *testing.T) {
	cs := []phofmit.Checksum{
		{Start: 0, Length: 512, ActualLength: 10, Algo: "sha1", Value: "abc"},
		{Start: 0, Length: 64, ActualLength: 10, Algo: "md5", Value: "def"},
	}
	got := phofmit.ChecksumSummary(cs)
	want := "[sha1:0:10:abc],[md5:0:10:def]"
	if got != want {
		t.Errorf("ChecksumSummary() = %q, want %q", got, want)
	}
	if phofmit.ChecksumSummary(nil) != "" {
		t.Error("ChecksumSummary(nil) should be empty")
	}
}
