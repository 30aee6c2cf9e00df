package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresConfig holds connection and schema mapping for the Postgres
// directory adapter. Table and column names come from configuration so
// the adapter can be pointed at whatever schema the enrollment loader
// populates.
type PostgresConfig struct {
	URL             string
	EnrollmentTable string
	UserTable       string
	UpdatedAtColumn string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPostgresConfig returns a PostgresConfig with sensible defaults.
func DefaultPostgresConfig(url string) PostgresConfig {
	return PostgresConfig{
		URL:             url,
		EnrollmentTable: "enrollments",
		UserTable:       "enrollment_users",
		UpdatedAtColumn: "updated_at",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Postgres is a Directory backed by a PostgreSQL enrollment store.
type Postgres struct {
	pool   *pgxpool.Pool
	cfg    PostgresConfig
	logger zerolog.Logger
}

// NewPostgres creates a Postgres directory adapter and verifies the
// connection.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger zerolog.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse directory URL: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create directory pool: %w", err)
	}

	p := &Postgres{
		pool:   pool,
		cfg:    cfg,
		logger: logger.With().Str("component", "directory").Logger(),
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping directory: %w", err)
	}

	p.logger.Info().Str("table", cfg.UserTable).Msg("directory connection established")
	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ListActiveEnrollments returns enrollments flagged active.
func (p *Postgres) ListActiveEnrollments(ctx context.Context) ([]Enrollment, error) {
	query := fmt.Sprintf("SELECT name, active FROM %s WHERE active",
		pgx.Identifier{p.cfg.EnrollmentTable}.Sanitize())

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.Name, &e.Active); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return enrollments, nil
}

// QueryFields returns the requested attribute columns for every user of
// the enrollment whose row was consistent as of asOf.
func (p *Postgres) QueryFields(ctx context.Context, enrollment Enrollment, fieldNames []string, asOf time.Time) ([]UserRow, error) {
	columns := make([]string, 0, len(fieldNames))
	for _, name := range fieldNames {
		columns = append(columns, pgx.Identifier{name}.Sanitize())
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE enrollment = $1 AND %s <= $2",
		strings.Join(columns, ", "),
		pgx.Identifier{p.cfg.UserTable}.Sanitize(),
		pgx.Identifier{p.cfg.UpdatedAtColumn}.Sanitize())

	rows, err := p.pool.Query(ctx, query, enrollment.Name, asOf)
	if err != nil {
		return nil, fmt.Errorf("query enrollment %s: %w", enrollment.Name, err)
	}
	defer rows.Close()

	var userRows []UserRow
	for rows.Next() {
		values := make([]sql.NullString, len(fieldNames))
		dest := make([]any, len(fieldNames))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}

		row := UserRow{Enrollment: enrollment.Name, Fields: make(map[string]string, len(fieldNames))}
		for i, name := range fieldNames {
			if values[i].Valid {
				row.Fields[name] = values[i].String
			}
		}
		userRows = append(userRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return userRows, nil
}

// LatestConsistentTime returns the newest update time across the user
// table, or nil when the table is empty.
func (p *Postgres) LatestConsistentTime(ctx context.Context) (*time.Time, error) {
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s",
		pgx.Identifier{p.cfg.UpdatedAtColumn}.Sanitize(),
		pgx.Identifier{p.cfg.UserTable}.Sanitize())

	var latest *time.Time
	if err := p.pool.QueryRow(ctx, query).Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest consistent time: %w", err)
	}
	return latest, nil
}
