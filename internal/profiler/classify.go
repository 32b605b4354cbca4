// Package profiler samples source tables and detects mismatches between
// declared and actual column types.
package profiler

import (
	"strconv"
	"strings"
	"time"
)

// ValueType identifies the actual type a sampled value classified as.
type ValueType string

const (
	TypeInteger   ValueType = "integer"
	TypeFloat     ValueType = "float"
	TypeBoolean   ValueType = "boolean"
	TypeTimestamp ValueType = "timestamp"
	TypeText      ValueType = "text"
	TypeMixed     ValueType = "mixed"
)

// classificationOrder is the fixed parser priority. A value that parses as
// more than one type is classified as the earliest match, which also serves
// as the tie-break when a column's sample is evenly split between two types.
var classificationOrder = []ValueType{
	TypeInteger,
	TypeFloat,
	TypeBoolean,
	TypeTimestamp,
	TypeText,
}

// canonicalTimestampLayouts are the layouts a value must match to classify
// as a well-formed timestamp.
var canonicalTimestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// legacyTimestampLayouts are known day-first source formats. Values in these
// layouts count as corrupt (they fail the canonical check) but remain
// repairable: the cleaner rewrites them into canonical form. Single-digit
// reference fields let one- and two-digit days, months, and hours parse.
var legacyTimestampLayouts = []string{
	"2/1/2006 15:4",
	"2/1/2006",
}

// Classify returns the first type in priority order that accepts the value.
// Text accepts everything, so Classify never fails on a non-null value.
func Classify(value string) ValueType {
	for _, t := range classificationOrder {
		if ParsesAs(value, t) {
			return t
		}
	}
	return TypeText
}

// ParsesAs reports whether a raw value is a valid instance of the given type.
func ParsesAs(value string, t ValueType) bool {
	switch t {
	case TypeInteger:
		_, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		return err == nil
	case TypeFloat:
		_, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		return err == nil
	case TypeBoolean:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "false", "t", "f", "yes", "no":
			return true
		}
		return false
	case TypeTimestamp:
		return parseLayouts(value, canonicalTimestampLayouts) != nil
	case TypeText:
		return true
	case TypeMixed:
		return false
	}
	return false
}

// ParseCanonicalTimestamp parses a canonical (ISO-form) timestamp value,
// returning nil if it does not match.
func ParseCanonicalTimestamp(value string) *time.Time {
	return parseLayouts(value, canonicalTimestampLayouts)
}

// ParseLegacyTimestamp parses a day-first legacy timestamp value, returning
// nil if it does not match. The cleaner uses this to repair corrupt dates.
func ParseLegacyTimestamp(value string) *time.Time {
	return parseLayouts(value, legacyTimestampLayouts)
}

// ParseAnyTimestamp tries canonical layouts first, then legacy ones.
func ParseAnyTimestamp(value string) *time.Time {
	if ts := parseLayouts(value, canonicalTimestampLayouts); ts != nil {
		return ts
	}
	return parseLayouts(value, legacyTimestampLayouts)
}

func parseLayouts(value string, layouts []string) *time.Time {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return &ts
		}
	}
	return nil
}

// DeclaredKind maps a declared column type label onto a ValueType, using
// SQLite affinity conventions (substring match on the label).
func DeclaredKind(label string) ValueType {
	l := strings.ToUpper(label)
	switch {
	case strings.Contains(l, "INT"):
		return TypeInteger
	case strings.Contains(l, "BOOL"):
		return TypeBoolean
	case strings.Contains(l, "DATE"), strings.Contains(l, "TIME"):
		return TypeTimestamp
	case strings.Contains(l, "REAL"), strings.Contains(l, "FLOA"),
		strings.Contains(l, "DOUB"), strings.Contains(l, "NUMERIC"),
		strings.Contains(l, "DEC"):
		return TypeFloat
	default:
		return TypeText
	}
}

// IsTemporal reports whether the type is a date/timestamp kind, the kinds
// the corrupt-date circuit-breaker rule applies to.
func IsTemporal(t ValueType) bool {
	return t == TypeTimestamp
}
