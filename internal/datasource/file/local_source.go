// Package file implements local filesystem access for the file-backed
// connectors: sequential readers with kernel read-ahead hints and writers
// that only replace their target on commit.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open opens the configured path for reading.
//
// A canceled context returns its error without touching the filesystem.
// Filesystem errors are wrapped with the path and keep errors.Is working
// (e.g. errors.Is(err, os.ErrNotExist)). The file is advised for
// sequential access where the platform supports it.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	adviseSequential(f)
	return f, nil
}

// Stat reports whether the path is a readable regular file.
func (l *Local) Stat(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fi, err := os.Stat(l.path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", l.path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("stat %s: is a directory", l.path)
	}
	return nil
}
