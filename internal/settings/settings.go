// Package settings persists the inbox's mutable state: the OAuth credential
// record and the time of the last successful sync. It is the on-disk
// counterpart of auth.Persister.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/rapture-inbox/internal/auth"
)

// FilePerms restricts the state file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the state directory.
const DirPerms = 0o700

// MetaIdentity is the meta key holding the signed-in account email.
const MetaIdentity = "identity"

// File is the on-disk format of the state document.
type File struct {
	Token    *oauth2.Token     `json:"token,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
	LastSync time.Time         `json:"last_sync,omitzero"`
}

// Document is a loaded state file. Every mutation is written back atomically.
type Document struct {
	path string

	mu   sync.Mutex
	file File
}

// Load reads the state document at path. A missing file yields an empty,
// signed-out document.
func Load(path string) (*Document, error) {
	d := &Document{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &d.file); err != nil {
		return nil, fmt.Errorf("settings: decoding %s: %w", path, err)
	}

	return d, nil
}

// Path returns the file the document is persisted to.
func (d *Document) Path() string {
	return d.path
}

// Credentials returns the stored credential record.
func (d *Document) Credentials() auth.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return auth.RecordFromToken(d.file.Token, d.file.Meta[MetaIdentity])
}

// SaveCredentials implements auth.Persister. A signed-out record removes the
// token and identity from the file.
func (d *Document) SaveCredentials(_ context.Context, rec auth.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec == (auth.Record{}) {
		d.file.Token = nil
		delete(d.file.Meta, MetaIdentity)
	} else {
		d.file.Token = rec.Token()
		if d.file.Meta == nil {
			d.file.Meta = make(map[string]string, 1)
		}
		if rec.Identity != "" {
			d.file.Meta[MetaIdentity] = rec.Identity
		} else {
			delete(d.file.Meta, MetaIdentity)
		}
	}

	return d.saveLocked()
}

// LastSync returns the time of the last successful sync, or the zero time.
func (d *Document) LastSync() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.LastSync
}

// SetLastSync records a successful sync.
func (d *Document) SetLastSync(t time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.file.LastSync = t.UTC()
	return d.saveLocked()
}

// saveLocked writes the document atomically (temp file + rename) with 0600
// permissions. The caller holds d.mu.
func (d *Document) saveLocked() error {
	data, err := json.MarshalIndent(d.file, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encoding: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("settings: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("settings: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: closing: %w", err)
	}

	if err := os.Rename(tmpPath, d.path); err != nil {
		return fmt.Errorf("settings: renaming: %w", err)
	}

	success = true
	return nil
}
