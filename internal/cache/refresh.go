package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/licsync/licsync/internal/models"
)

// RefreshStats reports what a single table rebuild did.
type RefreshStats struct {
	Inserted int
	Failed   int
}

type shadowSpec struct {
	table   string
	columns string
	schema  string
	indexes []string
}

var (
	userLicensesSpec = shadowSpec{
		table:   "user_licenses",
		columns: "(uid, license)",
		schema: `(
			uid TEXT NOT NULL CHECK (length(uid) > 0),
			license TEXT NOT NULL CHECK (length(license) BETWEEN 1 AND 9)
		)`,
		indexes: []string{
			"CREATE INDEX idx_user_licenses_uid ON user_licenses(uid)",
		},
	}
	userLoasSpec = shadowSpec{
		table:   "user_loas",
		columns: "(uid, loa)",
		schema: `(
			uid TEXT NOT NULL CHECK (length(uid) > 0),
			loa TEXT NOT NULL CHECK (length(loa) BETWEEN 1 AND 9)
		)`,
		indexes: []string{
			"CREATE INDEX idx_user_loas_uid ON user_loas(uid)",
		},
	}
	referenceSpec = shadowSpec{
		table:   "license_loa_eccn",
		columns: "(license, loa, eccn, effective, expiry)",
		schema: `(
			license TEXT NOT NULL,
			loa TEXT NOT NULL,
			eccn TEXT NOT NULL CHECK (length(eccn) BETWEEN 1 AND 10),
			effective TEXT NOT NULL,
			expiry TEXT NOT NULL
		)`,
		indexes: []string{
			"CREATE INDEX idx_license_loa_eccn_license ON license_loa_eccn(license)",
			"CREATE INDEX idx_license_loa_eccn_loa ON license_loa_eccn(loa)",
		},
	}
)

// RefreshDictionary rebuilds the user license and LOA tables from a
// snapshot. Each record inserts on its own: a row that violates the
// table constraints is counted and logged, and the rest of the snapshot
// still lands. User ids and grant values are lower-cased so cache
// lookups are case-insensitive.
func (s *Store) RefreshDictionary(ctx context.Context, records []models.DictionaryRecord) (RefreshStats, error) {
	var licenses, loas [][]any
	for _, r := range records {
		uid := strings.ToLower(r.UID)
		switch {
		case r.IsLicense():
			licenses = append(licenses, []any{uid, strings.ToLower(r.Licenses)})
		case r.IsLoa():
			loas = append(loas, []any{uid, strings.ToLower(r.Loas)})
		}
	}

	licStats, err := s.rebuild(ctx, userLicensesSpec, licenses)
	if err != nil {
		return licStats, err
	}
	loaStats, err := s.rebuild(ctx, userLoasSpec, loas)
	if err != nil {
		return loaStats, err
	}

	stats := RefreshStats{
		Inserted: licStats.Inserted + loaStats.Inserted,
		Failed:   licStats.Failed + loaStats.Failed,
	}
	s.logger.Info().
		Int("inserted", stats.Inserted).
		Int("failed", stats.Failed).
		Msg("dictionary cache refreshed")
	return stats, nil
}

// RefreshReference rebuilds the license/LOA/ECCN table from a snapshot.
// License, LOA and ECCN values are lower-cased; the date columns are
// stored as-is.
func (s *Store) RefreshReference(ctx context.Context, records []models.ReferenceRecord) (RefreshStats, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			strings.ToLower(r.License),
			strings.ToLower(r.Loa),
			strings.ToLower(r.Eccn),
			r.Effective,
			r.Expiry,
		})
	}

	stats, err := s.rebuild(ctx, referenceSpec, rows)
	if err != nil {
		return stats, err
	}
	s.logger.Info().
		Int("inserted", stats.Inserted).
		Int("failed", stats.Failed).
		Msg("reference cache refreshed")
	return stats, nil
}

// rebuild loads rows into a shadow table and swaps it in. The live table
// keeps serving reads until the swap, and the swap itself runs in one
// transaction.
func (s *Store) rebuild(ctx context.Context, spec shadowSpec, rows [][]any) (RefreshStats, error) {
	var stats RefreshStats
	shadow := spec.table + "_shadow"

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+shadow); err != nil {
		return stats, fmt.Errorf("drop stale shadow table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE "+shadow+" "+spec.schema); err != nil {
		return stats, fmt.Errorf("create shadow table: %w", err)
	}

	placeholders := "(?" + strings.Repeat(", ?", strings.Count(spec.columns, ",")) + ")"
	insert := "INSERT INTO " + shadow + " " + spec.columns + " VALUES " + placeholders

	for _, row := range rows {
		if _, err := s.db.ExecContext(ctx, insert, row...); err != nil {
			stats.Failed++
			s.logger.Error().Err(err).Str("table", spec.table).Msg("record rejected by cache constraints")
			continue
		}
		stats.Inserted++
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin table swap: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE "+spec.table); err != nil {
		return stats, fmt.Errorf("drop live table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "ALTER TABLE "+shadow+" RENAME TO "+spec.table); err != nil {
		return stats, fmt.Errorf("swap in shadow table: %w", err)
	}
	// Indexes go down with the dropped table.
	for _, index := range spec.indexes {
		if _, err := tx.ExecContext(ctx, index); err != nil {
			return stats, fmt.Errorf("recreate index: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit table swap: %w", err)
	}

	return stats, nil
}
