package ingestion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/contactkit/importer/internal/domain"
)

// emailPattern accepts local@domain.tld shapes, including plus tags and
// subdomains, and rejects bare local parts or bare domains.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9][A-Za-z0-9.\-]*\.[A-Za-z]{2,}$`)

// requiredFields must be present and non-empty after conversion.
var requiredFields = []string{domain.FieldEmail, domain.FieldFirstName}

// ValidationIssue describes why a converted row was rejected.
type ValidationIssue struct {
	Column   string
	RawValue string
	Message  string
}

// ValidEmail reports whether the address has a plausible local@domain.tld
// shape. This is a format check, not a deliverability check.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// ValidateRow checks a converted row against the required-field and format
// rules. A nil result means the row may proceed to deduplication.
func ValidateRow(values map[string]any) []ValidationIssue {
	var issues []ValidationIssue

	for _, field := range requiredFields {
		value, ok := values[field].(string)
		if !ok || strings.TrimSpace(value) == "" {
			issues = append(issues, ValidationIssue{
				Column:  field,
				Message: fmt.Sprintf("required field %s is missing", field),
			})
		}
	}

	if email, ok := values[domain.FieldEmail].(string); ok && strings.TrimSpace(email) != "" {
		if !ValidEmail(email) {
			issues = append(issues, ValidationIssue{
				Column:   domain.FieldEmail,
				RawValue: email,
				Message:  fmt.Sprintf("invalid email format: %s", email),
			})
		}
	}

	return issues
}
