package domain

import (
	"strings"
	"testing"
)

func TestColumnMappingConflicts(t *testing.T) {
	m := ColumnMapping{
		"Email":        FieldEmail,
		"E-Mail":       FieldEmail,
		"First Name":   FieldFirstName,
		"Ignored":      "",
		"Company Name": FieldCompany,
	}

	conflicts := m.Conflicts()
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %v, want exactly one", conflicts)
	}
	if !strings.Contains(conflicts[0], `"email"`) {
		t.Fatalf("conflict should name the contested field: %s", conflicts[0])
	}
	if !strings.Contains(conflicts[0], "E-Mail") || !strings.Contains(conflicts[0], "Email") {
		t.Fatalf("conflict should list both source columns: %s", conflicts[0])
	}
}

func TestColumnMappingNoConflicts(t *testing.T) {
	m := ColumnMapping{
		"Email":      FieldEmail,
		"First Name": FieldFirstName,
	}
	if conflicts := m.Conflicts(); len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", conflicts)
	}
}

func TestColumnMappingUnknownTargets(t *testing.T) {
	m := ColumnMapping{
		"Email":   FieldEmail,
		"Shape":   "favorite_shape",
		"Ignored": "",
	}
	unknown := m.UnknownTargets()
	if len(unknown) != 1 || unknown[0] != "favorite_shape" {
		t.Fatalf("unknown targets = %v, want [favorite_shape]", unknown)
	}
}

func TestColumnMappingClone(t *testing.T) {
	m := ColumnMapping{"Email": FieldEmail}
	clone := m.Clone()
	clone["Email"] = FieldPhone
	if m["Email"] != FieldEmail {
		t.Fatalf("clone must not alias the original")
	}

	var empty ColumnMapping
	if empty.Clone() != nil {
		t.Fatalf("cloning a nil mapping should stay nil")
	}
}
