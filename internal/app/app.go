package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"phofmit/internal/config"
	"phofmit/internal/database"
	"phofmit/internal/encryption"
	"phofmit/internal/fs"
	"phofmit/internal/phofmit"
	"phofmit/internal/store"
)

// Options carries the per-invocation settings the CLI passes to NewApp.
type Options struct {
	// Operation identifies the CLI command being run (e.g. "snapshot", "mirror").
	Operation  string
	Parameters string
	// Verbosity is the number of -v flags.
	Verbosity int
	// Stderr receives log lines at the verbosity threshold. Defaults to os.Stderr.
	Stderr io.Writer
	// Confirm answers both the config mismatch question and per-file
	// confirmations. Defaults to phofmit.AlwaysYes.
	Confirm phofmit.Confirmer
	// Progress renders scan and match progress. Defaults to phofmit.NopProgress.
	Progress phofmit.Progress
	// Passphrase is asked for when an encrypted snapshot has to be read.
	Passphrase func(prompt string) (string, error)
	Clock      phofmit.Clock
}

// App is the application layer between the CLI and phofmit.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw paths and snapshot locators, and records the run history.
type App struct {
	cfg       *config.Config
	opts      Options
	db        *database.SQLiteDatabase
	encryptor phofmit.Encryptor
	decrypt   phofmit.DecryptionContext
	stores    map[string]phofmit.SnapshotStore
	logger    phofmit.Logger
	service   *phofmit.Service
	clock     phofmit.Clock
	op        *Operation
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// The caller must call Close when done.
func NewApp(cfg *config.Config, opts Options) (*App, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Confirm == nil {
		opts.Confirm = phofmit.AlwaysYes
	}
	if opts.Progress == nil {
		opts.Progress = phofmit.NopProgress{}
	}
	if opts.Clock == nil {
		opts.Clock = phofmit.RealClock{}
	}

	opID := opts.Clock.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID, opts.Stderr, StderrLevel(opts.Verbosity))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	db, err := database.NewDatabaseFromConfig(cfg.Cache, cfg.HostID, opts.Clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption, cfg.Encryption.Armor)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	scanner := phofmit.NewScanner(fs.NewOSWalker(logger), logger, opts.Clock,
		phofmit.WithProgress(opts.Progress),
		phofmit.WithWorkers(cfg.Workers),
	)
	svc := phofmit.NewService(scanner, logger, opts.Clock,
		phofmit.WithCache(db),
		phofmit.WithConfirmer(opts.Confirm),
		phofmit.WithMatchProgress(opts.Progress),
		phofmit.WithVerbose(opts.Verbosity >= 1),
	)

	return &App{
		cfg:       cfg,
		opts:      opts,
		db:        db,
		encryptor: enc,
		stores:    make(map[string]phofmit.SnapshotStore),
		logger:    logger,
		service:   svc,
		clock:     opts.Clock,
		op:        NewOperation(opts.Operation, opts.Parameters),
		logFile:   logFile,
	}, nil
}

// persistOperation saves the operation to the run history, giving it an ID.
// This should only be called for commands that scan or move files.
func (a *App) persistOperation() error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	run, err := a.db.CreateRun(a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = run.ID
	return nil
}

// fail records err on the operation and returns it unchanged.
func (a *App) fail(err error) error {
	if err != nil {
		a.op.Fail(err)
	}
	return err
}

// Snapshot scans path. options are "key=value" scanner options applied on
// top of the [scanner] section of the config.
func (a *App) Snapshot(ctx context.Context, path string, options []string) (*phofmit.Snapshot, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	overrides, err := phofmit.ParseOptions(options)
	if err != nil {
		return nil, a.fail(err)
	}
	snap, err := a.service.Snapshot(ctx, path, a.cfg.Scanner.Merge(overrides))
	return snap, a.fail(err)
}

// MirrorOptions describes one mirror command.
type MirrorOptions struct {
	// Reference locates the reference snapshot: a file path or "store:key".
	Reference  string
	TargetPath string
	// TargetSnapshot, when set, is used instead of scanning TargetPath.
	TargetSnapshot string
	Options        []string
	DryRun         bool
	Shell          bool
	// DirMode overrides the configured dir_mode when set.
	DirMode  string
	UseCache bool
	// Output receives the status lines or the shell script.
	Output io.Writer
	Color  bool
}

// Mirror restores the reference layout in the target tree, or describes how
// to when in shell mode.
func (a *App) Mirror(ctx context.Context, mo MirrorOptions) (*phofmit.MirrorResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	res, err := a.mirror(ctx, mo)
	if res != nil {
		a.op.Moved = res.Moved
	}
	return res, a.fail(err)
}

func (a *App) mirror(ctx context.Context, mo MirrorOptions) (*phofmit.MirrorResult, error) {
	modeStr := mo.DirMode
	if modeStr == "" {
		modeStr = a.cfg.DirMode
	}
	dirMode, err := config.ParseDirMode(modeStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", phofmit.ErrInvalidConfig, err)
	}

	mode := phofmit.ModeApply
	if mo.Shell {
		mode = phofmit.ModeShell
	}
	mover, err := phofmit.NewMover(phofmit.MoverOptions{
		Mode:      mode,
		DryRun:    mo.DryRun,
		DirMode:   dirMode,
		Output:    mo.Output,
		Logger:    a.logger,
		Confirm:   a.opts.Confirm,
		Verbosity: a.opts.Verbosity,
		Color:     mo.Color,
		Locale:    phofmit.DetectLocale(),
	})
	if err != nil {
		return nil, err
	}

	overrides, err := phofmit.ParseOptions(mo.Options)
	if err != nil {
		return nil, err
	}
	ref, err := a.LoadSnapshot(ctx, mo.Reference)
	if err != nil {
		return nil, fmt.Errorf("loading reference snapshot: %w", err)
	}

	req := phofmit.MirrorRequest{
		Reference:  ref,
		TargetPath: mo.TargetPath,
		Overrides:  overrides,
		UseCache:   mo.UseCache,
		Mover:      mover,
	}
	basePath := ""
	if mo.TargetSnapshot != "" {
		if req.Target, err = a.LoadSnapshot(ctx, mo.TargetSnapshot); err != nil {
			return nil, fmt.Errorf("loading target snapshot: %w", err)
		}
		basePath = req.Target.BasePath
	} else if basePath, err = phofmit.CanonicalDir(mo.TargetPath); err != nil {
		return nil, err
	}

	if mode == phofmit.ModeApply && !mo.DryRun {
		lock, err := lockTarget(a.cfg.LockDir(), basePath)
		if err != nil {
			return nil, err
		}
		defer a.unlock(lock)
	}

	return a.service.Mirror(ctx, req)
}

func (a *App) unlock(lock *flock.Flock) {
	if err := lock.Unlock(); err != nil {
		a.logger.Warn("failed to release target lock", "error", err)
	}
}

// Diff compares a target with a reference snapshot without moving anything.
// target may be a snapshot locator or a directory, which is then scanned
// with the reference's scanner config.
func (a *App) Diff(ctx context.Context, reference, target string, options []string) (*phofmit.DiffResult, error) {
	overrides, err := phofmit.ParseOptions(options)
	if err != nil {
		return nil, err
	}
	ref, err := a.LoadSnapshot(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("loading reference snapshot: %w", err)
	}

	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		return a.service.DiffPath(ctx, ref, target, overrides)
	}
	snap, err := a.LoadSnapshot(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("loading target: %w", err)
	}
	return a.service.Diff(ref, snap, overrides)
}

// CacheEntries lists the cached target scans, newest first.
func (a *App) CacheEntries() ([]phofmit.CacheEntry, error) {
	return a.db.List()
}

// PurgeCache drops cached scans older than maxAge and returns how many.
func (a *App) PurgeCache(maxAge time.Duration) (int, error) {
	return a.db.Purge(a.clock.Now().Add(-maxAge))
}

// GetHistory returns the most recent runs.
func (a *App) GetHistory(limit int) ([]*database.Run, error) {
	return a.db.ListRuns(limit)
}

// SetupKeys generates the snapshot encryption key pair.
func (a *App) SetupKeys(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// store returns the configured store called name, creating it on first use.
func (a *App) store(ctx context.Context, name string) (phofmit.SnapshotStore, error) {
	if s, ok := a.stores[name]; ok {
		return s, nil
	}
	sc, ok := a.cfg.Store(name)
	if !ok {
		return nil, fmt.Errorf("unknown store %q", name)
	}
	s, err := store.NewStoreFromConfig(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("creating store %s: %w", name, err)
	}
	a.stores[name] = s
	return s, nil
}

// ListStore returns the snapshots held by the named store, newest first.
func (a *App) ListStore(ctx context.Context, name string) ([]phofmit.StoredSnapshot, error) {
	s, err := a.store(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}
	return s.List(ctx)
}

// PutStore uploads the snapshot file at path unchanged, keyed by its base name.
func (a *App) PutStore(ctx context.Context, name, path string) (string, error) {
	s, err := a.store(ctx, name)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat snapshot: %w", err)
	}
	key := filepath.Base(path)
	if err := s.Put(ctx, key, f, info.Size()); err != nil {
		return "", err
	}
	return name + ":" + key, nil
}

// GetStore downloads the stored object key into w.
func (a *App) GetStore(ctx context.Context, name, key string, w io.Writer) error {
	s, err := a.store(ctx, name)
	if err != nil {
		return err
	}
	return s.Get(ctx, key, w)
}

// splitLocator recognizes "store:key" snapshot locators. Anything else,
// including paths that merely contain a colon, is a file path.
func (a *App) splitLocator(locator string) (storeName, key string, ok bool) {
	name, key, found := strings.Cut(locator, ":")
	if !found || key == "" {
		return "", "", false
	}
	if _, known := a.cfg.Store(name); !known {
		return "", "", false
	}
	return name, key, true
}

// Close finalizes the operation record and closes all resources.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishRun(a.op.ID, a.op.Status, a.op.Moved); err != nil {
			firstErr = fmt.Errorf("finishing run: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
