package ingestion

import (
	"testing"

	"github.com/contactkit/importer/internal/domain"
)

func TestConvertIntegerFromDecimalString(t *testing.T) {
	got := Convert("employees_count", "9427000.0")
	if got != int64(9427000) {
		t.Fatalf("Convert(employees_count, 9427000.0) = %v, want 9427000", got)
	}
}

func TestConvertIntegerBlankAndGarbage(t *testing.T) {
	if got := Convert("employees_count", ""); got != nil {
		t.Fatalf("blank integer should convert to nil, got %v", got)
	}
	if got := Convert("employees_count", "a lot"); got != nil {
		t.Fatalf("non-numeric integer should convert to nil, got %v", got)
	}
	if got := Convert("revenue", "1200"); got != int64(1200) {
		t.Fatalf("Convert(revenue, 1200) = %v, want 1200", got)
	}
}

func TestConvertBooleanRecognizedValues(t *testing.T) {
	truthy := []string{"true", "1", "yes", "active", "t", "TRUE", "Yes"}
	for _, raw := range truthy {
		if got := Convert("is_active", raw); got != true {
			t.Fatalf("Convert(is_active, %q) = %v, want true", raw, got)
		}
	}
	falsy := []string{"false", "0", "no", "f", "inactive", "FALSE"}
	for _, raw := range falsy {
		if got := Convert("is_active", raw); got != false {
			t.Fatalf("Convert(is_active, %q) = %v, want false", raw, got)
		}
	}
}

// Blank or unrecognized boolean cells default to true. That default is part
// of the importer's compatibility contract; this test locks it in.
func TestConvertBooleanDefault(t *testing.T) {
	if got := Convert("is_active", ""); got != true {
		t.Fatalf("blank boolean should default to true, got %v", got)
	}
	if got := Convert("is_active", "banana"); got != true {
		t.Fatalf("unrecognized boolean should default to true, got %v", got)
	}
}

func TestConvertStringTrimsAndNormalizesNulls(t *testing.T) {
	if got := Convert("company", "  Acme  "); got != "Acme" {
		t.Fatalf("Convert(company) = %q, want Acme", got)
	}
	for _, raw := range []string{"nan", "NaN", "none", "NULL", ""} {
		if got := Convert("company", raw); got != "" {
			t.Fatalf("Convert(company, %q) = %q, want empty", raw, got)
		}
	}
}

func TestConvertRowCollectsIssues(t *testing.T) {
	values, issues := ConvertRow(map[string]string{
		"email":           "a@b.co",
		"employees_count": "not a number",
		"company":         " Acme ",
	})

	if values["email"] != "a@b.co" {
		t.Fatalf("expected email kept, got %v", values["email"])
	}
	if values["company"] != "Acme" {
		t.Fatalf("expected trimmed company, got %v", values["company"])
	}
	if _, ok := values["employees_count"]; ok {
		t.Fatalf("unconvertible integer should be absent from values")
	}
	if len(issues) != 1 || issues[0].Column != "employees_count" {
		t.Fatalf("expected one employees_count issue, got %+v", issues)
	}
}

func TestMergeFullNameFromParts(t *testing.T) {
	values := map[string]any{
		domain.FieldFirstName: "Ada",
		domain.FieldLastName:  "Lovelace",
	}
	MergeFullName(values)
	if values[domain.FieldFullName] != "Ada Lovelace" {
		t.Fatalf("expected merged full name, got %v", values[domain.FieldFullName])
	}
}

func TestMergeFullNamePrefersExisting(t *testing.T) {
	values := map[string]any{
		domain.FieldFirstName: "Ada",
		domain.FieldLastName:  "Lovelace",
		domain.FieldFullName:  "Countess Lovelace",
	}
	MergeFullName(values)
	if values[domain.FieldFullName] != "Countess Lovelace" {
		t.Fatalf("existing full name must win, got %v", values[domain.FieldFullName])
	}
}

func TestMergeFullNameSingleSide(t *testing.T) {
	values := map[string]any{domain.FieldFirstName: "Ada"}
	MergeFullName(values)
	if values[domain.FieldFullName] != "Ada" {
		t.Fatalf("expected first name only, got %v", values[domain.FieldFullName])
	}
}
