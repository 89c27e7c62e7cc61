package ingestion

import (
	"testing"

	"github.com/contactkit/importer/internal/domain"
)

func TestValidEmail(t *testing.T) {
	valid := []string{"user@example.com", "user+tag@sub.domain.co", "first.last@x.io"}
	for _, email := range valid {
		if !ValidEmail(email) {
			t.Fatalf("expected %q to be valid", email)
		}
	}

	invalid := []string{"invalid@", "@invalid.com", "plainstring", "a@b", ""}
	for _, email := range invalid {
		if ValidEmail(email) {
			t.Fatalf("expected %q to be invalid", email)
		}
	}
}

func TestValidateRowAcceptsCompleteRow(t *testing.T) {
	issues := ValidateRow(map[string]any{
		domain.FieldEmail:     "ada@example.com",
		domain.FieldFirstName: "Ada",
	})
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidateRowMissingRequiredFields(t *testing.T) {
	issues := ValidateRow(map[string]any{domain.FieldCompany: "Acme"})
	if len(issues) != 2 {
		t.Fatalf("expected missing email and first name, got %+v", issues)
	}
}

func TestValidateRowMalformedEmail(t *testing.T) {
	issues := ValidateRow(map[string]any{
		domain.FieldEmail:     "invalid@",
		domain.FieldFirstName: "Ada",
	})
	if len(issues) != 1 || issues[0].Column != domain.FieldEmail {
		t.Fatalf("expected one email format issue, got %+v", issues)
	}
}
