package validate

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licsync/licsync/internal/directory"
	"github.com/licsync/licsync/internal/models"
)

func userRow(enrollment, uid, licenses, loas string) directory.UserRow {
	fields := FieldNames{UserID: "uid", License: "licenses", Loa: "loas"}
	return directory.UserRow{
		Enrollment: enrollment,
		Fields: map[string]string{
			fields.UserID:  uid,
			fields.License: licenses,
			fields.Loa:     loas,
		},
	}
}

func TestEnrollmentPipelineFanOut(t *testing.T) {
	p := NewEnrollmentPipeline(DefaultLimits(), DefaultFieldNames(), zerolog.Nop())

	records, report := p.Run([]directory.UserRow{
		userRow("hr", "jsmith", "LIC1|LIC2", "LOA9"),
	})

	require.Len(t, records, 3)
	assert.Equal(t, models.NewLicenseRecord("jsmith", "LIC1"), records[0])
	assert.Equal(t, models.NewLicenseRecord("jsmith", "LIC2"), records[1])
	assert.Equal(t, models.NewLoaRecord("jsmith", "LOA9"), records[2])
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Valid)
	assert.Empty(t, report.Rejections)
}

func TestEnrollmentPipelineMissingUserID(t *testing.T) {
	p := NewEnrollmentPipeline(DefaultLimits(), DefaultFieldNames(), zerolog.Nop())

	records, report := p.Run([]directory.UserRow{
		userRow("hr", "", "LIC1", "LOA1"),
		userRow("hr", "mlee", "LIC3", ""),
	})

	// The whole first row is skipped, valid elements included.
	require.Len(t, records, 1)
	assert.Equal(t, "mlee", records[0].UID)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Valid)
	require.Len(t, report.Rejections, 1)
	assert.Contains(t, report.Rejections[0].Reason, "uid is NULL or empty")
}

func TestEnrollmentPipelineInvalidElementKeepsSiblings(t *testing.T) {
	p := NewEnrollmentPipeline(DefaultLimits(), DefaultFieldNames(), zerolog.Nop())

	records, report := p.Run([]directory.UserRow{
		userRow("hr", "jsmith", "ABCDEFGHIJ|LIC2", ""),
	})

	// The 10-char license is dropped, the valid sibling survives.
	require.Len(t, records, 1)
	assert.Equal(t, "LIC2", records[0].Licenses)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 0, report.Valid)
	require.Len(t, report.Rejections, 1)
	assert.Equal(t, "Invalid License : ABCDEFGHIJ", report.Rejections[0].Reason)
}

func TestEnrollmentPipelineLoaUsesLicenseLengthRule(t *testing.T) {
	limits := Limits{License: 9, Loa: 7, Eccn: 10}
	p := NewEnrollmentPipeline(limits, DefaultFieldNames(), zerolog.Nop())

	// An 8-char LOA exceeds the loa limit but fits the license limit,
	// and the pipeline accepts it.
	records, report := p.Run([]directory.UserRow{
		userRow("hr", "jsmith", "", "LOA45678"),
	})

	require.Len(t, records, 1)
	assert.Equal(t, "LOA45678", records[0].Loas)
	assert.Equal(t, 1, report.Valid)
	assert.Empty(t, report.Rejections)
}

func TestEnrollmentPipelineLogsRunID(t *testing.T) {
	var buf bytes.Buffer
	p := NewEnrollmentPipeline(DefaultLimits(), DefaultFieldNames(), zerolog.New(&buf))

	_, report := p.Run([]directory.UserRow{
		userRow("hr", "jsmith", "LIC1", ""),
	})

	// The completion event carries the run id so a log line can be tied
	// back to its report artifact.
	assert.Contains(t, buf.String(), report.RunID.String())
	assert.Contains(t, buf.String(), "enrollment pipeline run complete")
}

func TestEnrollmentPipelineEmptyFields(t *testing.T) {
	p := NewEnrollmentPipeline(DefaultLimits(), DefaultFieldNames(), zerolog.Nop())

	records, report := p.Run([]directory.UserRow{
		userRow("hr", "jsmith", "", ""),
	})

	// A user with no licenses or LOAs contributes nothing but is not an
	// error.
	assert.Empty(t, records)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Valid)
	assert.Empty(t, report.Rejections)
}
