// Package validate turns raw upstream rows into canonical, validated
// record sets. Two independent sub-pipelines share the same length
// primitives: the enrollment pipeline fans user rows out into dictionary
// records, and the reference pipeline parses the delimited license/LOA/
// ECCN feed. Each run produces a report that is written to a fresh log
// artifact; rejected records are dropped, never fatal.
package validate

import (
	"strconv"
	"strings"
)

// Default maximum lengths applied when an option is absent or unparsable.
const (
	DefaultLicenseLength = 9
	DefaultLoaLength     = 7
	DefaultEccnLength    = 10
)

// Option keys looked up in the configuration's named options.
const (
	OptionLicenseLength = "license_length"
	OptionLoaLength     = "loa_length"
	OptionEccnLength    = "eccn_length"
)

// MultiValueDelimiter separates elements inside a multi-valued field.
const MultiValueDelimiter = "|"

// Limits holds the maximum accepted lengths for each field kind.
type Limits struct {
	License int
	Loa     int
	Eccn    int
}

// DefaultLimits returns the documented default lengths.
func DefaultLimits() Limits {
	return Limits{
		License: DefaultLicenseLength,
		Loa:     DefaultLoaLength,
		Eccn:    DefaultEccnLength,
	}
}

// LimitsFromOptions builds Limits from named string options, falling back
// to the default for any option that is missing or not a number.
func LimitsFromOptions(options map[string]string) Limits {
	return Limits{
		License: intOption(options, OptionLicenseLength, DefaultLicenseLength),
		Loa:     intOption(options, OptionLoaLength, DefaultLoaLength),
		Eccn:    intOption(options, OptionEccnLength, DefaultEccnLength),
	}
}

func intOption(options map[string]string, key string, fallback int) int {
	raw, ok := options[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// ValidLicense reports whether a license value is non-empty and within
// the license length limit.
func (l Limits) ValidLicense(s string) bool {
	return validLength(s, l.License)
}

// ValidLoa reports whether an LOA value is non-empty and within the LOA
// length limit.
func (l Limits) ValidLoa(s string) bool {
	return validLength(s, l.Loa)
}

// ValidEccn reports whether an ECCN value is non-empty and within the
// ECCN length limit.
func (l Limits) ValidEccn(s string) bool {
	return validLength(s, l.Eccn)
}

func validLength(s string, max int) bool {
	trimmed := strings.TrimSpace(s)
	return trimmed != "" && len(trimmed) <= max
}

// SplitMultiValue splits a pipe-delimited field into its trimmed,
// non-empty elements. A value without the delimiter yields one element.
func SplitMultiValue(s string) []string {
	if s == "" {
		return nil
	}
	var elements []string
	for _, part := range strings.Split(s, MultiValueDelimiter) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			elements = append(elements, trimmed)
		}
	}
	return elements
}
