package validate

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Timestamp format used in report log headers.
const reportTimeFormat = "01/02/2006 15:04:05"

// Rejection records one dropped record and why.
type Rejection struct {
	// Context identifies where the record came from, e.g. an enrollment
	// name or a line number.
	Context string
	Reason  string
}

// String renders the rejection the way it appears in the log artifact.
func (r Rejection) String() string {
	return r.Context + " : " + r.Reason
}

// Report accumulates the outcome of one pipeline run. It is written to a
// per-run log artifact whose prior contents are discarded.
type Report struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	Total      int
	Valid      int
	Rejections []Rejection
}

// NewReport starts a report for a fresh run.
func NewReport() *Report {
	return &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}
}

// Reject records a dropped record.
func (r *Report) Reject(context, reason string) {
	r.Rejections = append(r.Rejections, Rejection{Context: context, Reason: reason})
}

// Clean reports whether the run had no rejections.
func (r *Report) Clean() bool {
	return len(r.Rejections) == 0
}

// Render produces the log artifact content: a timestamp header, one line
// per rejection, and a trailing marker when nothing was rejected.
func (r *Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Last update time : %s\r\n", r.StartedAt.Format(reportTimeFormat))
	for _, rej := range r.Rejections {
		b.WriteString(rej.String())
		b.WriteString("\r\n")
	}
	if r.Clean() {
		b.WriteString("No error found.")
	}
	return b.String()
}

// WriteLog overwrites the log artifact at path with this run's content.
func (r *Report) WriteLog(path string) error {
	if err := os.WriteFile(path, []byte(r.Render()), 0o644); err != nil {
		return fmt.Errorf("write validation log: %w", err)
	}
	return nil
}
