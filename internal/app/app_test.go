package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"phofmit/internal/config"
	"phofmit/internal/phofmit"
	"phofmit/internal/testutil"
)

var photoTree = map[string]string{
	"2023/beach.jpg":  "beach-photo",
	"2023/sunset.jpg": "sunset-photo",
	"2024/family.jpg": "family-photo",
}

// newTestConfig returns a config rooted in a temp dir with an in-memory
// cache, the test encryptor and a filesystem store called "local".
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig("test-host", base)
	cfg.Cache = config.CacheConfig{Type: "memory"}
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	cfg.SnapshotFilename = "{path}.json"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts Options) *App {
	t.Helper()
	if opts.Operation == "" {
		opts.Operation = "test"
	}
	if opts.Stderr == nil {
		opts.Stderr = &bytes.Buffer{}
	}
	if opts.Clock == nil {
		opts.Clock = testutil.FixedClock()
	}
	a, err := NewApp(cfg, opts)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func writePhotos(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, files)
	for rel := range files {
		testutil.SetMtime(t, root, rel, 1_700_000_000)
	}
	return root
}

func TestApp_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), Options{})
	root := writePhotos(t, photoTree)

	snap, err := a.Snapshot(ctx, root, []string{"use_filename=yes"})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Files) != len(photoTree) {
		t.Fatalf("len(Files) = %d, want %d", len(snap.Files), len(photoTree))
	}
	if !snap.ScannerConfig.UseFilename {
		t.Error("command line option use_filename=yes not applied")
	}

	dir := t.TempDir()
	locator, err := a.SaveSnapshot(ctx, snap, SaveOptions{Dir: dir})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if filepath.Dir(locator) != dir || !strings.HasSuffix(locator, ".json") {
		t.Errorf("SaveSnapshot() = %q, want a .json file in %s", locator, dir)
	}

	got, err := a.LoadSnapshot(ctx, locator)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if got.BasePath != snap.BasePath || len(got.Files) != len(snap.Files) {
		t.Errorf("LoadSnapshot() = %s with %d files, want %s with %d",
			got.BasePath, len(got.Files), snap.BasePath, len(snap.Files))
	}
	if !got.ScannerConfig.Equal(snap.ScannerConfig) {
		t.Errorf("ScannerConfig = %+v, want %+v", got.ScannerConfig, snap.ScannerConfig)
	}
}

func TestApp_SnapshotInvalidOption(t *testing.T) {
	a := newTestApp(t, newTestConfig(t), Options{})
	_, err := a.Snapshot(context.Background(), t.TempDir(), []string{"no_such_option=1"})
	if err == nil {
		t.Fatal("Snapshot() expected error for unknown option")
	}
	if a.op.Status != "error" {
		t.Errorf("op.Status = %q, want error", a.op.Status)
	}
}

func TestApp_EncryptedStoreSnapshot(t *testing.T) {
	ctx := context.Background()
	var prompts int
	a := newTestApp(t, newTestConfig(t), Options{
		Passphrase: func(string) (string, error) {
			prompts++
			return "secret", nil
		},
	})
	snap, err := a.Snapshot(ctx, writePhotos(t, photoTree), nil)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	locator, err := a.SaveSnapshot(ctx, snap, SaveOptions{Store: "local", Encrypt: true})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if !strings.HasPrefix(locator, "local:") || !strings.HasSuffix(locator, ".json.age") {
		t.Errorf("SaveSnapshot() = %q, want local:<name>.json.age", locator)
	}

	items, err := a.ListStore(ctx, "local")
	if err != nil {
		t.Fatalf("ListStore() error = %v", err)
	}
	if len(items) != 1 || "local:"+items[0].Key != locator {
		t.Errorf("ListStore() = %+v, want the saved snapshot", items)
	}

	for i := 0; i < 2; i++ {
		got, err := a.LoadSnapshot(ctx, locator)
		if err != nil {
			t.Fatalf("LoadSnapshot() error = %v", err)
		}
		if len(got.Files) != len(photoTree) {
			t.Errorf("len(Files) = %d, want %d", len(got.Files), len(photoTree))
		}
	}
	if prompts != 1 {
		t.Errorf("passphrase asked %d times, want 1", prompts)
	}
}

func TestApp_LoadSnapshotErrors(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), Options{})

	if _, err := a.LoadSnapshot(ctx, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadSnapshot() expected error for missing file")
	}

	garbage := filepath.Join(t.TempDir(), "garbage.json")
	if err := os.WriteFile(garbage, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.LoadSnapshot(ctx, garbage); err == nil {
		t.Error("LoadSnapshot() expected error for malformed snapshot")
	}

	snap, err := a.Snapshot(ctx, writePhotos(t, photoTree), nil)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	locator, err := a.SaveSnapshot(ctx, snap, SaveOptions{Dir: t.TempDir(), Encrypt: true})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if _, err := a.LoadSnapshot(ctx, locator); err == nil {
		t.Error("LoadSnapshot() of encrypted file without passphrase prompt expected error")
	}
}

func TestApp_Mirror(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg, Options{Operation: "mirror"})

	snap, err := a.Snapshot(ctx, writePhotos(t, photoTree), nil)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	ref, err := a.SaveSnapshot(ctx, snap, SaveOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	target := writePhotos(t, map[string]string{
		"inbox/a.jpg":     photoTree["2023/beach.jpg"],
		"2023/sunset.jpg": photoTree["2023/sunset.jpg"],
		"family.jpg":      photoTree["2024/family.jpg"],
	})

	t.Run("dry run leaves the tree alone", func(t *testing.T) {
		var out bytes.Buffer
		res, err := a.Mirror(ctx, MirrorOptions{Reference: ref, TargetPath: target, DryRun: true, Output: &out})
		if err != nil {
			t.Fatalf("Mirror() error = %v", err)
		}
		if res.Moved != 0 {
			t.Errorf("Moved = %d, want 0 in dry run", res.Moved)
		}
		if _, err := os.Stat(filepath.Join(target, "family.jpg")); err != nil {
			t.Errorf("dry run moved family.jpg: %v", err)
		}
	})

	t.Run("shell mode writes a script", func(t *testing.T) {
		var out bytes.Buffer
		if _, err := a.Mirror(ctx, MirrorOptions{Reference: ref, TargetPath: target, Shell: true, Output: &out}); err != nil {
			t.Fatalf("Mirror() error = %v", err)
		}
		if !strings.Contains(out.String(), "mv ") {
			t.Errorf("script has no mv commands:\n%s", out.String())
		}
	})

	t.Run("shell and dry run conflict", func(t *testing.T) {
		_, err := a.Mirror(ctx, MirrorOptions{Reference: ref, TargetPath: target, Shell: true, DryRun: true})
		if !errors.Is(err, phofmit.ErrConflictingModes) {
			t.Errorf("Mirror() error = %v, want ErrConflictingModes", err)
		}
	})

	t.Run("busy target", func(t *testing.T) {
		basePath, err := phofmit.CanonicalDir(target)
		if err != nil {
			t.Fatal(err)
		}
		lock, err := lockTarget(cfg.LockDir(), basePath)
		if err != nil {
			t.Fatalf("lockTarget() error = %v", err)
		}
		defer lock.Unlock()

		_, err = a.Mirror(ctx, MirrorOptions{Reference: ref, TargetPath: target})
		if !errors.Is(err, ErrTargetBusy) {
			t.Errorf("Mirror() error = %v, want ErrTargetBusy", err)
		}
	})

	t.Run("apply", func(t *testing.T) {
		var out bytes.Buffer
		res, err := a.Mirror(ctx, MirrorOptions{Reference: ref, TargetPath: target, Output: &out})
		if err != nil {
			t.Fatalf("Mirror() error = %v", err)
		}
		if res.Moved != 2 {
			t.Errorf("Moved = %d, want 2", res.Moved)
		}
		if got := testutil.ReadTree(t, target); !reflect.DeepEqual(got, photoTree) {
			t.Errorf("target tree = %v, want %v", got, photoTree)
		}
		if a.op.Moved != 2 {
			t.Errorf("op.Moved = %d, want 2", a.op.Moved)
		}
	})
}

func TestApp_MirrorInvalidDirMode(t *testing.T) {
	a := newTestApp(t, newTestConfig(t), Options{})
	_, err := a.Mirror(context.Background(), MirrorOptions{Reference: "ref.json", TargetPath: t.TempDir(), DirMode: "9"})
	if !phofmit.IsConfigError(err) {
		t.Errorf("Mirror() error = %v, want a config error", err)
	}
}

func TestApp_MirrorConfigMismatchDeclined(t *testing.T) {
	ctx := context.Background()
	confirm := testutil.NewScriptedConfirmer(false)
	a := newTestApp(t, newTestConfig(t), Options{Confirm: confirm.Confirm})

	root := writePhotos(t, photoTree)
	snap, err := a.Snapshot(ctx, root, nil)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	ref, err := a.SaveSnapshot(ctx, snap, SaveOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	target, err := a.Snapshot(ctx, root, []string{"use_filename=yes"})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	targetRef, err := a.SaveSnapshot(ctx, target, SaveOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	_, err = a.Mirror(ctx, MirrorOptions{Reference: ref, TargetSnapshot: targetRef, Shell: true, Output: &bytes.Buffer{}})
	if !errors.Is(err, phofmit.ErrConfigMismatch) {
		t.Fatalf("Mirror() error = %v, want ErrConfigMismatch", err)
	}
	if a.op.Status != "aborted" {
		t.Errorf("op.Status = %q, want aborted", a.op.Status)
	}
	if len(confirm.Questions()) != 1 {
		t.Errorf("questions = %v, want one", confirm.Questions())
	}
}

func TestApp_Diff(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), Options{})

	snap, err := a.Snapshot(ctx, writePhotos(t, photoTree), nil)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	ref, err := a.SaveSnapshot(ctx, snap, SaveOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	target := writePhotos(t, map[string]string{
		"x.jpg":   photoTree["2023/beach.jpg"],
		"new.jpg": "never seen before",
	})

	d, err := a.Diff(ctx, ref, target, nil)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if len(d.Matches) != 1 || d.Matches[0].Reference.Path != "2023/beach.jpg" {
		t.Errorf("Matches = %+v, want x.jpg -> 2023/beach.jpg", d.Matches)
	}

	// A reference diffed against itself places every file.
	d, err = a.Diff(ctx, ref, ref, nil)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	for _, m := range d.Matches {
		if !m.AlreadyPlaced() {
			t.Errorf("self diff match %s -> %s not in place", m.Target.Path, m.Reference.Path)
		}
	}
}

func TestApp_History(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Cache = config.CacheConfig{Type: "sqlite", DataDir: filepath.Join(cfg.BaseDir, "cache")}
	clock := testutil.FixedClock()

	a, err := NewApp(cfg, Options{Operation: "snapshot", Parameters: "/photos", Stderr: &bytes.Buffer{}, Clock: clock})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	if _, err := a.Snapshot(ctx, writePhotos(t, photoTree), nil); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b := newTestApp(t, cfg, Options{Operation: "history", Clock: clock})
	runs, err := b.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(GetHistory()) = %d, want 1 (history itself is not recorded)", len(runs))
	}
	if runs[0].Operation != "snapshot" || runs[0].Status != "success" || !runs[0].FinishedAt.Valid {
		t.Errorf("run = %+v, want finished successful snapshot", runs[0])
	}
}

func TestApp_StorePutGet(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), Options{})

	src := filepath.Join(t.TempDir(), "photos.json")
	if err := os.WriteFile(src, []byte(`{"version":"1.0"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	locator, err := a.PutStore(ctx, "local", src)
	if err != nil {
		t.Fatalf("PutStore() error = %v", err)
	}
	if locator != "local:photos.json" {
		t.Errorf("PutStore() = %q, want local:photos.json", locator)
	}

	var buf bytes.Buffer
	if err := a.GetStore(ctx, "local", "photos.json", &buf); err != nil {
		t.Fatalf("GetStore() error = %v", err)
	}
	if buf.String() != `{"version":"1.0"}` {
		t.Errorf("GetStore() = %q", buf.String())
	}

	if _, err := a.ListStore(ctx, "nowhere"); err == nil {
		t.Error("ListStore() expected error for unknown store")
	}
}

func TestApp_CachePurge(t *testing.T) {
	clock := testutil.FixedClock()
	a := newTestApp(t, newTestConfig(t), Options{Clock: clock})

	snap, err := a.Snapshot(context.Background(), writePhotos(t, photoTree), nil)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if err := a.db.Put(phofmit.CacheKey(snap.BasePath, snap.ScannerConfig), snap); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	entries, err := a.CacheEntries()
	if err != nil || len(entries) != 1 {
		t.Fatalf("CacheEntries() = %v, %v, want one entry", entries, err)
	}

	n, err := a.PurgeCache(0)
	if err != nil {
		t.Fatalf("PurgeCache() error = %v", err)
	}
	if n != 0 {
		t.Errorf("PurgeCache(0) = %d, want 0 for an entry created now", n)
	}
	clock.Advance(48 * time.Hour)
	if n, _ = a.PurgeCache(24 * time.Hour); n != 1 {
		t.Errorf("PurgeCache(24h) = %d, want 1", n)
	}
}
