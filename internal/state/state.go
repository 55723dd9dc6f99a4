// Package state persists small JSON documents that must survive crashes:
// every save is atomic and keeps the previous version as a backup that
// Load falls back to when the main file is corrupt.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"conduit/internal/fsutil"
	"conduit/internal/logger"
)

// File is one crash-safe JSON document at Path with its backup at
// Path + ".bak".
type File struct {
	Path string
	log  logger.Logger
}

// NewFile returns a File for path.
func NewFile(path string, log logger.Logger) *File {
	if log == nil {
		log = logger.NewNull()
	}
	return &File{Path: path, log: log.WithName("conduit:state")}
}

func (f *File) backupPath() string { return f.Path + ".bak" }

// Load decodes the document into v. It reports false when neither the
// main file nor a usable backup exists. A corrupt main file is restored
// from the backup.
func (f *File) Load(v any) (bool, error) {
	b, err := os.ReadFile(f.Path)
	switch {
	case err == nil:
		derr := decode(b, v)
		if derr == nil {
			return true, nil
		}
		f.log.Warn("state file corrupted, trying backup", "path", f.Path, "error", derr)
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("state: read %s: %w", f.Path, err)
	}

	bb, err := os.ReadFile(f.backupPath())
	if errors.Is(err, os.ErrNotExist) {
		f.log.Error("no backup available, starting empty", "path", f.Path)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state: read backup: %w", err)
	}
	if err := decode(bb, v); err != nil {
		f.log.Error("backup also corrupted, starting empty", "path", f.backupPath(), "error", err)
		return false, nil
	}
	if err := fsutil.WriteFileAtomic(f.Path, bb, 0o644); err != nil {
		return true, fmt.Errorf("state: restore from backup: %w", err)
	}
	f.log.Info("state restored from backup", "path", f.Path)
	return true, nil
}

// Save copies the current document to the backup and atomically replaces
// it with v.
func (f *File) Save(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if prev, err := os.ReadFile(f.Path); err == nil {
		if json.Valid(prev) {
			if err := fsutil.WriteFileAtomic(f.backupPath(), prev, 0o644); err != nil {
				f.log.Warn("failed to rotate backup", "path", f.backupPath(), "error", err)
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("state: read %s: %w", f.Path, err)
	}
	if err := fsutil.WriteFileAtomic(f.Path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return nil
}

// decode unmarshals b into v keeping numbers as json.Number.
func decode(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}
