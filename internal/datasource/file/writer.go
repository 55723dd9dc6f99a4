package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCommitted is returned by writes after Commit or Abort.
var ErrCommitted = errors.New("file: writer already closed")

// AtomicWriter stages output in a temp file beside the target. Commit
// renames it into place; Abort removes it and leaves the target untouched.
//
// In append mode the existing target content is copied into the staging
// file first, so the target is still replaced in one rename.
type AtomicWriter struct {
	path string
	tmp  *os.File
	done bool
}

// Create starts a staged write for path. When appendExisting is true and
// path exists, its bytes are carried over into the staging file.
func Create(path string, appendExisting bool) (*AtomicWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("create staging file for %s: %w", path, err)
	}
	w := &AtomicWriter{path: path, tmp: tmp}
	if appendExisting {
		if err := w.copyExisting(); err != nil {
			w.Abort()
			return nil, err
		}
	}
	return w, nil
}

func (w *AtomicWriter) copyExisting() error {
	b, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", w.path, err)
	}
	_, err = w.tmp.Write(b)
	return err
}

// Path returns the final destination path.
func (w *AtomicWriter) Path() string { return w.path }

// Existing reports whether the staging file already holds carried-over bytes.
func (w *AtomicWriter) Existing() bool {
	fi, err := w.tmp.Stat()
	return err == nil && fi.Size() > 0
}

func (w *AtomicWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, ErrCommitted
	}
	return w.tmp.Write(p)
}

// Commit syncs the staging file and renames it over the target.
func (w *AtomicWriter) Commit() error {
	if w.done {
		return ErrCommitted
	}
	w.done = true
	name := w.tmp.Name()
	if err := w.tmp.Sync(); err != nil {
		w.tmp.Close()
		os.Remove(name)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(name, w.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename %s: %w", w.path, err)
	}
	return nil
}

// Abort discards the staged output. It is a no-op after Commit.
func (w *AtomicWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}
