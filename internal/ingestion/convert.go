package ingestion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/contactkit/importer/internal/domain"
)

// boolean spellings accepted as explicit values. Anything else, blanks
// included, falls back to the default below.
var truthyValues = map[string]bool{
	"true": true, "1": true, "yes": true, "active": true, "t": true, "y": true,
}

var falsyValues = map[string]bool{
	"false": true, "0": true, "no": true, "inactive": true, "f": true, "n": true,
}

// defaultBool is the value an unrecognized or blank boolean cell converts
// to. The source system this pipeline replaces defaulted to true; that is
// kept as contract rather than silently corrected. See DESIGN.md.
const defaultBool = true

// null spellings that normalize to an empty string field.
var nullStrings = map[string]bool{
	"nan": true, "none": true, "null": true,
}

// ConversionIssue records a cell whose value could not be coerced to the
// field's declared type. The field becomes null and the row proceeds; the
// issue is surfaced in the error log without rejecting the row.
type ConversionIssue struct {
	Column   string
	RawValue string
	Message  string
}

// Convert coerces a raw cell to the declared type of the canonical field.
// Pure; never fails. Unconvertible integers become nil, unrecognized
// booleans become the documented default, strings are trimmed with null
// spellings collapsed to empty.
func Convert(field, raw string) any {
	value, _ := convert(field, raw)
	return value
}

func convert(field, raw string) (any, *ConversionIssue) {
	switch domain.FieldTypeOf(field) {
	case domain.FieldTypeInteger:
		return convertInteger(field, raw)
	case domain.FieldTypeBoolean:
		return convertBoolean(raw), nil
	default:
		return convertString(raw), nil
	}
}

func convertInteger(field, raw string) (any, *ConversionIssue) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || nullStrings[strings.ToLower(trimmed)] {
		return nil, nil
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i, nil
	}
	// Decimal exports like "9427000.0" are common; truncate toward zero.
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return int64(f), nil
	}
	return nil, &ConversionIssue{
		Column:   field,
		RawValue: raw,
		Message:  fmt.Sprintf("cannot convert %q to integer", trimmed),
	}
}

func convertBoolean(raw string) bool {
	value := strings.ToLower(strings.TrimSpace(raw))
	if truthyValues[value] {
		return true
	}
	if falsyValues[value] {
		return false
	}
	return defaultBool
}

func convertString(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if nullStrings[strings.ToLower(trimmed)] {
		return ""
	}
	return trimmed
}

// ConvertRow applies Convert to every mapped cell of a raw row. Returned
// values hold only non-nil results; issues report cells that nulled out.
func ConvertRow(raw map[string]string) (map[string]any, []ConversionIssue) {
	values := make(map[string]any, len(raw))
	var issues []ConversionIssue

	for field, cell := range raw {
		value, issue := convert(field, cell)
		if issue != nil {
			issues = append(issues, *issue)
			continue
		}
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok && s == "" {
			continue
		}
		values[field] = value
	}

	return values, issues
}

// MergeFullName derives full_name from the name parts when the source did
// not supply one. An already-present non-empty full_name is preferred.
func MergeFullName(values map[string]any) {
	if name, ok := values[domain.FieldFullName].(string); ok && strings.TrimSpace(name) != "" {
		return
	}

	first, _ := values[domain.FieldFirstName].(string)
	last, _ := values[domain.FieldLastName].(string)
	merged := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if merged != "" {
		values[domain.FieldFullName] = merged
	}
}
