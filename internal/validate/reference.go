package validate

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/licsync/licsync/internal/models"
)

// Date layouts: the feed carries month/day/year, the cache stores
// year-month-day.
const (
	SourceDateLayout = "01/02/2006"
	StoredDateLayout = "2006-01-02"
)

const referenceColumnCount = 5

// ReferencePipeline parses and validates the delimited license/LOA/ECCN
// feed. Rows accumulate every defect that applies before being rejected,
// so one log line exists per problem, not per row.
type ReferencePipeline struct {
	limits Limits
	logger zerolog.Logger
}

// NewReferencePipeline creates a reference pipeline.
func NewReferencePipeline(limits Limits, logger zerolog.Logger) *ReferencePipeline {
	return &ReferencePipeline{
		limits: limits,
		logger: logger.With().Str("component", "reference_pipeline").Logger(),
	}
}

// Run reads the whole feed, skipping the header line, and returns the
// accepted records plus the run report. The error return is reserved for
// an unreadable source; row defects never fail the run.
func (p *ReferencePipeline) Run(r io.Reader) ([]models.ReferenceRecord, *Report, error) {
	report := NewReport()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, report, fmt.Errorf("read reference feed: %w", err)
	}

	var records []models.ReferenceRecord
	seen := make(map[models.ReferenceKey]int)

	for i, row := range rows {
		line := i + 1
		if i == 0 {
			// Header.
			continue
		}
		report.Total++

		if len(row) != referenceColumnCount {
			report.Reject(lineContext(line), "Missing columns.")
			p.logger.Error().Int("line", line).Int("columns", len(row)).Msg("column count mismatch")
			continue
		}

		license := strings.TrimSpace(row[0])
		loa := strings.TrimSpace(row[1])
		eccn := strings.TrimSpace(row[2])
		effective := strings.TrimSpace(row[3])
		expiry := strings.TrimSpace(row[4])

		rejected := false
		reject := func(reason string) {
			rejected = true
			report.Reject(lineContext(line), reason)
			p.logger.Error().Int("line", line).Msg(reason)
		}

		if license != "" && !p.limits.ValidLicense(license) {
			reject("Invalid License.")
		}
		if loa != "" && !p.limits.ValidLoa(loa) {
			reject("Invalid LOA.")
		}
		if license == "" && loa == "" {
			reject("License & LOA are empty or NULL.")
		} else {
			if license == "" {
				license = models.NullToken
			}
			if loa == "" {
				loa = models.NullToken
			}
		}
		if !p.limits.ValidEccn(eccn) {
			reject("Invalid ECCN.")
		}
		if effective == "" {
			reject("Effective Date NULL or empty.")
		}
		if expiry == "" {
			reject("Expiry Date NULL or empty.")
		}

		key := models.ReferenceKey{License: license, Loa: loa, Eccn: eccn}
		if firstLine, dup := seen[key]; dup {
			reject(fmt.Sprintf("Duplicate record (first seen on line %d).", firstLine))
		} else {
			seen[key] = line
		}

		var effectiveStored, expiryStored string
		effectiveParsed, err := time.Parse(SourceDateLayout, effective)
		if err != nil {
			if effective != "" {
				reject("Error parsing Effective Date. Ensure date format is MM/dd/yyyy.")
			}
		} else {
			effectiveStored = effectiveParsed.Format(StoredDateLayout)
		}
		expiryParsed, err := time.Parse(SourceDateLayout, expiry)
		if err != nil {
			if expiry != "" {
				reject("Error parsing Expiry Date. Ensure date format is MM/dd/yyyy.")
			}
		} else {
			expiryStored = expiryParsed.Format(StoredDateLayout)
		}

		if effectiveStored != "" && expiryStored != "" && effectiveParsed.After(expiryParsed) {
			reject("Effective date is after Expiry date.")
		}

		if rejected {
			continue
		}

		report.Valid++
		records = append(records, models.ReferenceRecord{
			License:   license,
			Loa:       loa,
			Eccn:      eccn,
			Effective: effectiveStored,
			Expiry:    expiryStored,
		})
	}

	p.logger.Info().
		Str("run_id", report.RunID.String()).
		Int("total", report.Total).
		Int("valid", report.Valid).
		Msg("reference pipeline run complete")

	return records, report, nil
}

func lineContext(line int) string {
	return fmt.Sprintf("Line %d", line)
}
