package app

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"phofmit/internal/config"
	"phofmit/internal/encryption"
	"phofmit/internal/phofmit"
)

// ErrNoKeys is returned when an encrypted snapshot is requested before
// `phofmit config keys` has been run.
var ErrNoKeys = errors.New("encryption keys not configured (run: phofmit config keys)")

// SaveOptions selects where and how SaveSnapshot writes.
type SaveOptions struct {
	// Dir receives the file when Store is empty and the name is relative.
	// Defaults to the working directory.
	Dir string
	// Template overrides the configured filename template.
	Template string
	// Store names a configured snapshot store to upload to instead.
	Store   string
	Encrypt bool
}

// SaveSnapshot encodes snap and writes it to a file or a store. It returns
// the locator that later commands accept for the saved snapshot.
func (a *App) SaveSnapshot(ctx context.Context, snap *phofmit.Snapshot, so SaveOptions) (string, error) {
	template := so.Template
	if template == "" {
		template = a.cfg.SnapshotFilename
	}
	if template == "" {
		template = config.DefaultSnapshotFilename
	}
	name := phofmit.SnapshotFilename(template, snap.Hostname, snap.BasePath, a.clock.Now())

	var buf bytes.Buffer
	if err := phofmit.EncodeSnapshot(&buf, snap); err != nil {
		return "", err
	}
	if so.Encrypt {
		if !a.encryptor.IsConfigured() {
			return "", ErrNoKeys
		}
		var enc bytes.Buffer
		if err := a.encryptor.Encrypt(&buf, &enc); err != nil {
			return "", fmt.Errorf("encrypting snapshot: %w", err)
		}
		buf = enc
		name += ".age"
	}

	if so.Store != "" {
		s, err := a.store(ctx, so.Store)
		if err != nil {
			return "", err
		}
		if err := s.Put(ctx, name, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
			return "", fmt.Errorf("uploading snapshot: %w", err)
		}
		a.logger.Info("snapshot stored", "store", so.Store, "key", name, "files", len(snap.Files))
		return so.Store + ":" + name, nil
	}

	path := name
	if !filepath.IsAbs(path) && so.Dir != "" {
		path = filepath.Join(so.Dir, name)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}
	a.logger.Info("snapshot written", "path", path, "files", len(snap.Files))
	return path, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".phofmit-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	return nil
}

// LoadSnapshot reads the snapshot at locator, a file path or "store:key".
// Encrypted snapshots are recognized by their header; the passphrase is
// asked for once per App.
func (a *App) LoadSnapshot(ctx context.Context, locator string) (*phofmit.Snapshot, error) {
	rc, err := a.open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, 4096)
	head, err := br.Peek(encryption.SniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("reading %s: %w", locator, err)
	}

	var r io.Reader = br
	if encryption.Detect(head).Encrypted() {
		dc, err := a.decryptionContext()
		if err != nil {
			return nil, err
		}
		var plain bytes.Buffer
		if err := dc.Decrypt(br, &plain); err != nil {
			return nil, fmt.Errorf("decrypting %s: %w", locator, err)
		}
		r = &plain
	}

	snap, err := phofmit.DecodeSnapshot(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locator, err)
	}
	return snap, nil
}

func (a *App) open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if name, key, ok := a.splitLocator(locator); ok {
		s, err := a.store(ctx, name)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := s.Get(ctx, key, &buf); err != nil {
			return nil, fmt.Errorf("fetching %s: %w", locator, err)
		}
		return io.NopCloser(&buf), nil
	}
	f, err := os.Open(locator)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	return f, nil
}

func (a *App) decryptionContext() (phofmit.DecryptionContext, error) {
	if a.decrypt != nil {
		return a.decrypt, nil
	}
	if !a.encryptor.IsConfigured() {
		return nil, ErrNoKeys
	}
	if a.opts.Passphrase == nil {
		return nil, errors.New("snapshot is encrypted and no passphrase prompt is available")
	}
	pass, err := a.opts.Passphrase("Passphrase for snapshot key: ")
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	dc, err := a.encryptor.Unlock(pass)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	a.decrypt = dc
	return dc, nil
}
