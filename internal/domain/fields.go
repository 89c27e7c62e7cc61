package domain

// FieldType represents the declared type of a canonical contact field
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeBoolean FieldType = "boolean"
)

// Canonical field names. These are the only targets a source column can be
// mapped to; columns that match none of them are dropped from the record.
const (
	FieldFirstName      = "first_name"
	FieldLastName       = "last_name"
	FieldFullName       = "full_name"
	FieldEmail          = "email"
	FieldPhone          = "phone"
	FieldCompany        = "company"
	FieldJobTitle       = "job_title"
	FieldWebsite        = "website"
	FieldLinkedIn       = "linkedin"
	FieldTwitter        = "twitter"
	FieldAddress        = "address"
	FieldCity           = "city"
	FieldState          = "state"
	FieldCountry        = "country"
	FieldPostalCode     = "postal_code"
	FieldIndustry       = "industry"
	FieldEmployeesCount = "employees_count"
	FieldRevenue        = "revenue"
	FieldIsActive       = "is_active"
	FieldNotes          = "notes"
	FieldTags           = "tags"
)

// CanonicalFields maps every canonical field to its declared type.
var CanonicalFields = map[string]FieldType{
	FieldFirstName:      FieldTypeString,
	FieldLastName:       FieldTypeString,
	FieldFullName:       FieldTypeString,
	FieldEmail:          FieldTypeString,
	FieldPhone:          FieldTypeString,
	FieldCompany:        FieldTypeString,
	FieldJobTitle:       FieldTypeString,
	FieldWebsite:        FieldTypeString,
	FieldLinkedIn:       FieldTypeString,
	FieldTwitter:        FieldTypeString,
	FieldAddress:        FieldTypeString,
	FieldCity:           FieldTypeString,
	FieldState:          FieldTypeString,
	FieldCountry:        FieldTypeString,
	FieldPostalCode:     FieldTypeString,
	FieldIndustry:       FieldTypeString,
	FieldEmployeesCount: FieldTypeInteger,
	FieldRevenue:        FieldTypeInteger,
	FieldIsActive:       FieldTypeBoolean,
	FieldNotes:          FieldTypeString,
	FieldTags:           FieldTypeString,
}

// IsCanonicalField reports whether name is part of the canonical vocabulary.
func IsCanonicalField(name string) bool {
	_, ok := CanonicalFields[name]
	return ok
}

// FieldTypeOf returns the declared type for a canonical field, defaulting to
// string for unknown names so callers degrade to trimmed-text handling.
func FieldTypeOf(name string) FieldType {
	if t, ok := CanonicalFields[name]; ok {
		return t
	}
	return FieldTypeString
}
