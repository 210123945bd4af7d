package database

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"phofmit/internal/database/migrations"
	"phofmit/internal/phofmit"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase holds the scan cache and the history of mirror runs.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock phofmit.Clock
}

// Run is one recorded CLI run.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string
	Parameters string
	Status     string
	Moved      int64
}

// NewSQLiteDatabase opens the database at path (or ":memory:") and brings
// its schema up to date. A nil clock uses the real time.
func NewSQLiteDatabase(path string, clock phofmit.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	if clock == nil {
		clock = phofmit.RealClock{}
	}
	return &SQLiteDatabase{db: db, path: path, clock: clock}, nil
}

// OpenConnection opens a SQLite connection configured for this package.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" is a separate database, and one writer
	// is all a CLI run needs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	return db, nil
}

// Scan cache

// Get implements phofmit.ScanCache.
func (s *SQLiteDatabase) Get(key string) (*phofmit.Snapshot, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT snapshot FROM scan_cache WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached scan: %w", err)
	}
	snap, err := phofmit.DecodeSnapshot(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("cached scan %s: %w", key, err)
	}
	return snap, nil
}

// Put implements phofmit.ScanCache.
func (s *SQLiteDatabase) Put(key string, snap *phofmit.Snapshot) error {
	var buf bytes.Buffer
	if err := phofmit.EncodeSnapshot(&buf, snap); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO scan_cache (key, base_path, file_count, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			base_path = excluded.base_path,
			file_count = excluded.file_count,
			snapshot = excluded.snapshot,
			created_at = excluded.created_at`,
		key, snap.BasePath, len(snap.Files), buf.Bytes(), s.clock.Now().Unix())
	if err != nil {
		return fmt.Errorf("storing cached scan: %w", err)
	}
	return nil
}

// Delete implements phofmit.ScanCache.
func (s *SQLiteDatabase) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM scan_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting cached scan: %w", err)
	}
	return nil
}

// List implements phofmit.ScanCache.
func (s *SQLiteDatabase) List() ([]phofmit.CacheEntry, error) {
	rows, err := s.db.Query(`
		SELECT key, base_path, file_count, created_at
		FROM scan_cache
		ORDER BY created_at DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("listing cached scans: %w", err)
	}
	defer rows.Close()

	var entries []phofmit.CacheEntry
	for rows.Next() {
		var e phofmit.CacheEntry
		var created int64
		if err := rows.Scan(&e.Key, &e.BasePath, &e.FileCount, &created); err != nil {
			return nil, fmt.Errorf("scanning cache row: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge implements phofmit.ScanCache.
func (s *SQLiteDatabase) Purge(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM scan_cache WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("purging cached scans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging cached scans: %w", err)
	}
	return int(n), nil
}

// Run history

// CreateRun records the start of a run and returns it with its ID.
func (s *SQLiteDatabase) CreateRun(operation, parameters string) (*Run, error) {
	started := s.clock.Now()
	res, err := s.db.Exec(`INSERT INTO runs (started_at, operation, parameters) VALUES (?, ?, ?)`,
		started.Unix(), operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return &Run{
		ID:         id,
		StartedAt:  time.Unix(started.Unix(), 0).UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}, nil
}

// FinishRun stores the final status of a run and how many files it moved.
func (s *SQLiteDatabase) FinishRun(id int64, status string, moved int) error {
	res, err := s.db.Exec(`UPDATE runs SET finished_at = ?, status = ?, moved = ? WHERE id = ?`,
		s.clock.Now().Unix(), status, moved, id)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run: no run with id %d", id)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteDatabase) ListRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, operation, parameters, status, moved
		FROM runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Operation, &r.Parameters, &r.Status, &r.Moved); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			r.FinishedAt = sql.NullTime{Time: time.Unix(finished.Int64, 0).UTC(), Valid: true}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up to date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Close implements phofmit.ScanCache.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ phofmit.ScanCache = (*SQLiteDatabase)(nil)
