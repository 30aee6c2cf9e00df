package validate

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/licsync/licsync/internal/directory"
	"github.com/licsync/licsync/internal/models"
)

// FieldNames maps the logical user attributes onto the directory's field
// names, which vary per deployment and come from configuration.
type FieldNames struct {
	UserID  string
	License string
	Loa     string
}

// DefaultFieldNames returns the conventional directory field names.
func DefaultFieldNames() FieldNames {
	return FieldNames{UserID: "uid", License: "licenses", Loa: "loas"}
}

// Names returns the field names in query order.
func (f FieldNames) Names() []string {
	return []string{f.UserID, f.License, f.Loa}
}

// EnrollmentPipeline converts enrollment user rows into dictionary
// records. Multi-valued license/LOA fields fan out into one record per
// element; invalid elements are rejected individually so a row still
// contributes its valid elements.
type EnrollmentPipeline struct {
	limits Limits
	fields FieldNames
	logger zerolog.Logger
}

// NewEnrollmentPipeline creates an enrollment pipeline.
func NewEnrollmentPipeline(limits Limits, fields FieldNames, logger zerolog.Logger) *EnrollmentPipeline {
	return &EnrollmentPipeline{
		limits: limits,
		fields: fields,
		logger: logger.With().Str("component", "enrollment_pipeline").Logger(),
	}
}

// Run validates every user row and returns the accepted dictionary
// records plus the run report. A row with a missing user id is rejected
// whole; element-level failures only drop that element.
func (p *EnrollmentPipeline) Run(rows []directory.UserRow) ([]models.DictionaryRecord, *Report) {
	report := NewReport()
	var records []models.DictionaryRecord

	for _, row := range rows {
		report.Total++
		rowClean := true

		userID := row.Field(p.fields.UserID)
		if userID == "" {
			report.Reject("Enrollment "+row.Enrollment,
				fmt.Sprintf("%s is NULL or empty, record skipped", p.fields.UserID))
			p.logger.Error().Str("enrollment", row.Enrollment).Msg("user row has no user id")
			continue
		}

		for _, license := range SplitMultiValue(row.Field(p.fields.License)) {
			if p.limits.ValidLicense(license) {
				records = append(records, models.NewLicenseRecord(userID, license))
			} else {
				rowClean = false
				report.Reject("Enrollment "+row.Enrollment, "Invalid License : "+license)
				p.logger.Error().Str("enrollment", row.Enrollment).Str("license", license).Msg("invalid license element")
			}
		}

		// LOA elements are checked against the license length rule to
		// match the authority's long-standing behavior.
		for _, loa := range SplitMultiValue(row.Field(p.fields.Loa)) {
			if p.limits.ValidLicense(loa) {
				records = append(records, models.NewLoaRecord(userID, loa))
			} else {
				rowClean = false
				report.Reject("Enrollment "+row.Enrollment, "Invalid LOA : "+loa)
				p.logger.Error().Str("enrollment", row.Enrollment).Str("loa", loa).Msg("invalid loa element")
			}
		}

		if rowClean {
			report.Valid++
		}
	}

	p.logger.Info().
		Str("run_id", report.RunID.String()).
		Int("total", report.Total).
		Int("valid", report.Valid).
		Int("records", len(records)).
		Msg("enrollment pipeline run complete")

	return records, report
}
