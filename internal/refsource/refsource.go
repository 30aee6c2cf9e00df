// Package refsource exposes the license/LOA/ECCN reference feed to the
// server. The feed lands as a flat file dropped by an upstream export
// process; its modification time is the source time used by freshness
// arbitration.
package refsource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Source provides the reference feed content and its last change time.
type Source interface {
	// Open returns a reader over the current feed content.
	Open() (io.ReadCloser, error)
	// LastChangeTime returns when the feed last changed, or nil when no
	// feed exists yet.
	LastChangeTime() (*time.Time, error)
}

// File is a Source backed by a file on the server host.
type File struct {
	path string
}

// NewFile returns a file-backed source. The file does not need to exist
// yet; a missing feed simply reports no change time.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the feed file path.
func (f *File) Path() string { return f.path }

func (f *File) Open() (io.ReadCloser, error) {
	r, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open reference feed: %w", err)
	}
	return r, nil
}

func (f *File) LastChangeTime() (*time.Time, error) {
	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat reference feed: %w", err)
	}
	mtime := info.ModTime().UTC()
	return &mtime, nil
}
