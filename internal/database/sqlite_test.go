package database

import (
	"testing"
	"time"

	"phofmit/internal/phofmit"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) (*SQLiteDatabase, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	db, err := NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db, clock
}

func testSnapshot(base string, paths ...string) *phofmit.Snapshot {
	cfg, _ := phofmit.NormalizeConfig(phofmit.RawScannerConfig{})
	snap := &phofmit.Snapshot{
		Version:       phofmit.SnapshotVersion,
		Hostname:      "host",
		Date:          "2024-03-01T12:00:00Z",
		BasePath:      base,
		ScannerConfig: cfg,
		Files:         []phofmit.FileRecord{},
	}
	for i, p := range paths {
		snap.Files = append(snap.Files, phofmit.FileRecord{
			Path:      p,
			Size:      phofmit.Int64(int64(i + 1)),
			Mtime:     phofmit.Int64(1700000000),
			Checksums: []phofmit.Checksum{},
		})
	}
	return snap
}

func TestSQLiteDatabase_ScanCache(t *testing.T) {
	t.Run("get missing key returns nil", func(t *testing.T) {
		db, _ := newTestDB(t)

		got, err := db.Get("nope")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() = %v, want nil", got)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		db, _ := newTestDB(t)
		snap := testSnapshot("/photos", "a.jpg", "b/c.jpg")

		if err := db.Put("k1", snap); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, err := db.Get("k1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got == nil {
			t.Fatal("Get() = nil, want snapshot")
		}
		if got.BasePath != "/photos" {
			t.Errorf("BasePath = %q, want %q", got.BasePath, "/photos")
		}
		if len(got.Files) != 2 || got.Files[1].Path != "b/c.jpg" {
			t.Errorf("Files = %+v", got.Files)
		}
		if !got.ScannerConfig.Equal(snap.ScannerConfig) {
			t.Errorf("ScannerConfig = %+v, want %+v", got.ScannerConfig, snap.ScannerConfig)
		}
	})

	t.Run("put replaces existing entry", func(t *testing.T) {
		db, _ := newTestDB(t)

		if err := db.Put("k", testSnapshot("/photos", "a")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := db.Put("k", testSnapshot("/photos", "a", "b", "c")); err != nil {
			t.Fatalf("second Put() error = %v", err)
		}

		entries, err := db.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("len(List()) = %d, want 1", len(entries))
		}
		if entries[0].FileCount != 3 {
			t.Errorf("FileCount = %d, want 3", entries[0].FileCount)
		}
	})

	t.Run("delete", func(t *testing.T) {
		db, _ := newTestDB(t)

		if err := db.Put("k", testSnapshot("/photos")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := db.Delete("k"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := db.Delete("k"); err != nil {
			t.Errorf("Delete() of missing key error = %v", err)
		}
		got, _ := db.Get("k")
		if got != nil {
			t.Error("Get() after Delete() returned a snapshot")
		}
	})

	t.Run("list newest first and purge", func(t *testing.T) {
		db, clock := newTestDB(t)

		if err := db.Put("old", testSnapshot("/a")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		clock.now = clock.now.Add(48 * time.Hour)
		if err := db.Put("new", testSnapshot("/b")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		entries, err := db.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(entries) != 2 || entries[0].Key != "new" || entries[1].Key != "old" {
			t.Fatalf("List() = %+v, want [new old]", entries)
		}
		if !entries[0].CreatedAt.Equal(clock.now) {
			t.Errorf("CreatedAt = %v, want %v", entries[0].CreatedAt, clock.now)
		}

		n, err := db.Purge(clock.now.Add(-24 * time.Hour))
		if err != nil {
			t.Fatalf("Purge() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Purge() = %d, want 1", n)
		}
		entries, _ = db.List()
		if len(entries) != 1 || entries[0].Key != "new" {
			t.Errorf("List() after Purge() = %+v, want [new]", entries)
		}
	})
}

func TestSQLiteDatabase_Runs(t *testing.T) {
	db, clock := newTestDB(t)

	first, err := db.CreateRun("mirror", "/ref.json /photos")
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if first.ID == 0 {
		t.Error("CreateRun() returned ID 0")
	}
	if first.Status != "running" {
		t.Errorf("Status = %q, want running", first.Status)
	}

	clock.now = clock.now.Add(time.Minute)
	if err := db.FinishRun(first.ID, "success", 7); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	second, err := db.CreateRun("snapshot", "/photos")
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(ListRuns()) = %d, want 2", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("runs[0].ID = %d, want %d", runs[0].ID, second.ID)
	}
	done := runs[1]
	if done.Status != "success" || done.Moved != 7 {
		t.Errorf("finished run = %+v, want status success, moved 7", done)
	}
	if !done.FinishedAt.Valid || !done.FinishedAt.Time.Equal(clock.now) {
		t.Errorf("FinishedAt = %+v, want %v", done.FinishedAt, clock.now)
	}
	if runs[0].FinishedAt.Valid {
		t.Error("unfinished run has FinishedAt set")
	}

	if err := db.FinishRun(9999, "success", 0); err == nil {
		t.Error("FinishRun() of unknown id expected error")
	}

	limited, err := db.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("len(ListRuns(1)) = %d, want 1", len(limited))
	}
}
