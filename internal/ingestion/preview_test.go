package ingestion

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/contactkit/importer/internal/domain"
)

func newPreviewService(t *testing.T) *Service {
	t.Helper()
	return newTestService(t, newStubJobRepo(), newStubContactRepo(), &stubErrorRepo{}, 10)
}

func TestPreviewAutoDetectsColumns(t *testing.T) {
	service := newPreviewService(t)

	data := strings.Join([]string{
		"Email,First Name,Employees,Mystery Column",
		"alice@x.com,Alice,250,whatever",
		"bad-email,Bob,not a number,whatever",
	}, "\n")

	result, err := service.Preview(context.Background(), PreviewRequest{
		Filename: "contacts.csv",
		Data:     strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("preview returned error: %v", err)
	}

	if result.TotalRows != 2 {
		t.Fatalf("total rows = %d, want 2", result.TotalRows)
	}
	if result.InvalidRows != 1 {
		t.Fatalf("invalid rows = %d, want 1", result.InvalidRows)
	}
	if len(result.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", result.Conflicts)
	}

	byHeader := make(map[string]PreviewColumn)
	for _, c := range result.Columns {
		byHeader[c.Header] = c
	}
	if col := byHeader["Email"]; !col.Mapped || col.Field != domain.FieldEmail {
		t.Fatalf("Email column mapped badly: %+v", col)
	}
	if col := byHeader["Employees"]; !col.Mapped || col.Type != domain.FieldTypeInteger {
		t.Fatalf("Employees column mapped badly: %+v", col)
	}
	if col := byHeader["Mystery Column"]; col.Mapped {
		t.Fatalf("unknown header should stay unmapped: %+v", col)
	}
}

func TestPreviewReportsRowErrors(t *testing.T) {
	service := newPreviewService(t)

	data := strings.Join([]string{
		"Email,First Name,Employees",
		"alice@x.com,Alice,250",
		"alice@x.com,Alicia,10",
		"not-an-email,Bob,many",
	}, "\n")

	result, err := service.Preview(context.Background(), PreviewRequest{
		Filename: "contacts.csv",
		Data:     strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("preview returned error: %v", err)
	}

	if len(result.Rows) != 3 {
		t.Fatalf("sample rows = %d, want 3", len(result.Rows))
	}
	if len(result.Rows[0].Errors) != 0 {
		t.Fatalf("clean row should have no errors, got %v", result.Rows[0].Errors)
	}
	if len(result.Rows[1].Errors) == 0 || !strings.Contains(result.Rows[1].Errors[0], "duplicate") {
		t.Fatalf("repeated email should flag a duplicate, got %v", result.Rows[1].Errors)
	}

	var sawEmail, sawEmployees bool
	for _, msg := range result.Rows[2].Errors {
		if strings.HasPrefix(msg, "email:") {
			sawEmail = true
		}
		if strings.HasPrefix(msg, "employees_count:") {
			sawEmployees = true
		}
	}
	if !sawEmail || !sawEmployees {
		t.Fatalf("expected email and employees_count feedback, got %v", result.Rows[2].Errors)
	}

	// Conversion trouble alone does not invalidate a row; only the malformed
	// email row fails validation and the duplicate is not counted as invalid.
	if result.InvalidRows != 1 {
		t.Fatalf("invalid rows = %d, want 1", result.InvalidRows)
	}
}

func TestPreviewRespectsSampleLimit(t *testing.T) {
	service := newPreviewService(t)

	var sb strings.Builder
	sb.WriteString("Email,First Name\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&sb, "user%d@example.com,User\n", i)
	}

	result, err := service.Preview(context.Background(), PreviewRequest{
		Filename: "contacts.csv",
		Data:     strings.NewReader(sb.String()),
		Limit:    5,
	})
	if err != nil {
		t.Fatalf("preview returned error: %v", err)
	}
	if result.TotalRows != 25 {
		t.Fatalf("total rows = %d, want 25", result.TotalRows)
	}
	if len(result.Rows) != 5 {
		t.Fatalf("sample rows = %d, want 5", len(result.Rows))
	}
}

func TestPreviewSurfacesMappingConflicts(t *testing.T) {
	service := newPreviewService(t)

	result, err := service.Preview(context.Background(), PreviewRequest{
		Filename: "contacts.csv",
		Mapping: domain.ColumnMapping{
			"Email":        "email",
			"Backup Email": "email",
		},
		Data: strings.NewReader("Email,Backup Email\na@x.com,b@x.com\n"),
	})
	if err != nil {
		t.Fatalf("preview returned error: %v", err)
	}
	if len(result.Conflicts) == 0 {
		t.Fatalf("expected mapping conflicts to be reported")
	}
}

func TestPreviewEmptyFile(t *testing.T) {
	service := newPreviewService(t)

	_, err := service.Preview(context.Background(), PreviewRequest{
		Filename: "contacts.csv",
		Data:     strings.NewReader(""),
	})
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
}
