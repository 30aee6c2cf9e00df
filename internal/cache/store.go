// Package cache maintains the enforcement node's local authorization
// cache in SQLite. The cache is the node's only source of authorization
// data between polls, so refreshes replace tables atomically: a crash
// mid-refresh leaves the previous generation intact.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const lastSyncKey = "last_sync_time"

// Store wraps the node's SQLite cache database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens (creating if needed) the cache database under dataDir.
func NewStore(dataDir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "cache.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger.With().Str("component", "cache_store").Logger(),
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store.logger.Info().Str("path", dbPath).Msg("cache database initialized")

	return store, nil
}

// migrate creates the cache tables. The CHECK constraints mirror the
// server-side length limits so a corrupt payload row fails its own
// insert instead of poisoning the cache.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS user_licenses (
			uid TEXT NOT NULL CHECK (length(uid) > 0),
			license TEXT NOT NULL CHECK (length(license) BETWEEN 1 AND 9)
		);

		CREATE INDEX IF NOT EXISTS idx_user_licenses_uid ON user_licenses(uid);

		CREATE TABLE IF NOT EXISTS user_loas (
			uid TEXT NOT NULL CHECK (length(uid) > 0),
			loa TEXT NOT NULL CHECK (length(loa) BETWEEN 1 AND 9)
		);

		CREATE INDEX IF NOT EXISTS idx_user_loas_uid ON user_loas(uid);

		CREATE TABLE IF NOT EXISTS license_loa_eccn (
			license TEXT NOT NULL,
			loa TEXT NOT NULL,
			eccn TEXT NOT NULL CHECK (length(eccn) BETWEEN 1 AND 10),
			effective TEXT NOT NULL,
			expiry TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_license_loa_eccn_license ON license_loa_eccn(license);
		CREATE INDEX IF NOT EXISTS idx_license_loa_eccn_loa ON license_loa_eccn(loa);

		CREATE TABLE IF NOT EXISTS sync_metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LastSyncTime returns the recorded last sync time, or nil when the node
// has never completed a sync.
func (s *Store) LastSyncTime(ctx context.Context) (*time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM sync_metadata WHERE key = ?", lastSyncKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last sync time: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, fmt.Errorf("parse last sync time %q: %w", value, err)
	}
	t = t.UTC()
	return &t, nil
}

// SetLastSyncTime records the last sync time.
func (s *Store) SetLastSyncTime(ctx context.Context, t time.Time) error {
	query := `
		INSERT INTO sync_metadata (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`
	if _, err := s.db.ExecContext(ctx, query, lastSyncKey, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record last sync time: %w", err)
	}
	return nil
}

// SanityCounts summarizes the cache content after a refresh.
type SanityCounts struct {
	// Users is the number of distinct user ids holding at least one
	// license or LOA.
	Users int
	// ReferenceRows is the total number of license/LOA/ECCN rows.
	ReferenceRows int
}

// CountSanity computes the post-refresh sanity counts.
func (s *Store) CountSanity(ctx context.Context) (SanityCounts, error) {
	var counts SanityCounts

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT uid FROM user_licenses
			UNION
			SELECT uid FROM user_loas
		)
	`).Scan(&counts.Users)
	if err != nil {
		return counts, fmt.Errorf("count distinct users: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM license_loa_eccn").Scan(&counts.ReferenceRows)
	if err != nil {
		return counts, fmt.Errorf("count reference rows: %w", err)
	}

	return counts, nil
}
