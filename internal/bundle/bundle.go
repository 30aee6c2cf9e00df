// Package bundle packages snapshot files into the zip archive carried in
// the sync response payload, and unpacks it on the enforcement node. The
// archive is a transparent container: entry bytes come out exactly as
// they went in.
package bundle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one named file inside the archive.
type Entry struct {
	Name string
	Data []byte
}

// Pack builds a zip archive from the entries and returns its bytes.
// Entry order is preserved.
func Pack(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, entry := range entries {
		f, err := w.Create(entry.Name)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("create archive entry %s: %w", entry.Name, err)
		}
		if _, err := f.Write(entry.Data); err != nil {
			w.Close()
			return nil, fmt.Errorf("write archive entry %s: %w", entry.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// PackFiles reads the named files and packs each under its base name.
func PackFiles(paths []string) ([]byte, error) {
	entries := make([]Entry, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		entries = append(entries, Entry{Name: filepath.Base(path), Data: data})
	}
	return Pack(entries)
}

// Unpack extracts every archive entry into dir, overwriting existing
// files. Entry names holding path separators or parent references are
// rejected: archive content comes off the network and must not escape
// the target directory.
func Unpack(archive []byte, dir string) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction directory: %w", err)
	}

	var extracted []string
	for _, f := range r.File {
		if !safeEntryName(f.Name) {
			return nil, fmt.Errorf("unsafe archive entry name %q", f.Name)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read archive entry %s: %w", f.Name, err)
		}

		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		extracted = append(extracted, path)
	}
	return extracted, nil
}

func safeEntryName(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return name != "." && name != ".."
}
