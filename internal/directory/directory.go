// Package directory defines the enrollment directory collaborator: the
// authoritative source of user attribute data from which per-user
// license and LOA grants are derived. The server consumes it only
// through the Directory interface; a PostgreSQL adapter is provided.
package directory

import (
	"context"
	"time"
)

// Enrollment is a registered identity source in the directory.
type Enrollment struct {
	Name   string
	Active bool
}

// UserRow is one user's attribute values from an enrollment query.
// Multi-valued attributes arrive joined with the pipe delimiter and are
// fanned out downstream.
type UserRow struct {
	Enrollment string
	Fields     map[string]string
}

// Field returns a named field value, or "" when absent.
func (r UserRow) Field(name string) string {
	return r.Fields[name]
}

// Directory is the narrow surface the sync server needs from the
// enrollment directory.
type Directory interface {
	// ListActiveEnrollments returns the enrollments eligible for export.
	ListActiveEnrollments(ctx context.Context) ([]Enrollment, error)
	// QueryFields returns the named field values for every user of an
	// enrollment, consistent as of the given time.
	QueryFields(ctx context.Context, enrollment Enrollment, fieldNames []string, asOf time.Time) ([]UserRow, error)
	// LatestConsistentTime reports when the directory's data last
	// changed, or nil when unknown.
	LatestConsistentTime(ctx context.Context) (*time.Time, error)
}
