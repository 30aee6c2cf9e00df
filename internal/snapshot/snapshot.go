// Package snapshot persists the validated data sets as JSON files in the
// server data directory. The file modification time is the snapshot time
// used by freshness arbitration, so writes must be atomic: a half-written
// snapshot with a fresh mtime would be served as current.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/licsync/licsync/internal/models"
)

// Store reads and writes domain snapshots under a single directory.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore creates a snapshot store rooted at dir, creating the
// directory if needed.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "snapshot_store").Logger(),
	}, nil
}

// Path returns the snapshot file path for a domain.
func (s *Store) Path(domain models.Domain) string {
	return filepath.Join(s.dir, domain.SnapshotName())
}

// Write marshals records and replaces the domain snapshot atomically.
// The payload lands in a temp file first and is renamed into place, so a
// reader never observes a partial snapshot.
func (s *Store) Write(domain models.Domain, records any) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal %s snapshot: %w", domain, err)
	}

	tmp, err := os.CreateTemp(s.dir, domain.SnapshotName()+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(domain)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s snapshot: %w", domain, err)
	}

	s.logger.Info().
		Str("domain", string(domain)).
		Int("bytes", len(data)).
		Msg("snapshot written")
	return nil
}

// Read returns the raw snapshot bytes for a domain.
func (s *Store) Read(domain models.Domain) ([]byte, error) {
	data, err := os.ReadFile(s.Path(domain))
	if err != nil {
		return nil, fmt.Errorf("read %s snapshot: %w", domain, err)
	}
	return data, nil
}

// LastWriteTime returns the snapshot file's modification time, or nil
// when no snapshot exists yet.
func (s *Store) LastWriteTime(domain models.Domain) (*time.Time, error) {
	info, err := os.Stat(s.Path(domain))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s snapshot: %w", domain, err)
	}
	mtime := info.ModTime().UTC()
	return &mtime, nil
}
