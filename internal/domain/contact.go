package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contact represents one cleaned, typed contact record ready for storage.
// Every canonical field appears as an explicit struct member so a missing or
// renamed source column surfaces as a compile error, not a silent default.
type Contact struct {
	ID             uuid.UUID `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Company        string    `json:"company,omitempty"`
	JobTitle       string    `json:"job_title,omitempty"`
	Website        string    `json:"website,omitempty"`
	LinkedIn       string    `json:"linkedin,omitempty"`
	Twitter        string    `json:"twitter,omitempty"`
	Address        string    `json:"address,omitempty"`
	City           string    `json:"city,omitempty"`
	State          string    `json:"state,omitempty"`
	Country        string    `json:"country,omitempty"`
	PostalCode     string    `json:"postal_code,omitempty"`
	Industry       string    `json:"industry,omitempty"`
	EmployeesCount *int64    `json:"employees_count,omitempty"`
	Revenue        *int64    `json:"revenue,omitempty"`
	IsActive       bool      `json:"is_active"`
	Notes          string    `json:"notes,omitempty"`
	Tags           string    `json:"tags,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizedEmail returns the lower-cased, trimmed email used as the
// deduplication and identity key.
func (c Contact) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(c.Email))
}

// NewContact builds a contact from converted field values. Unknown keys are
// ignored; every canonical field is enumerated here exactly once.
func NewContact(values map[string]any) Contact {
	now := time.Now()
	c := Contact{
		ID:        uuid.New(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for name, value := range values {
		switch name {
		case FieldFirstName:
			c.FirstName = asString(value)
		case FieldLastName:
			c.LastName = asString(value)
		case FieldFullName:
			c.FullName = asString(value)
		case FieldEmail:
			c.Email = strings.ToLower(asString(value))
		case FieldPhone:
			c.Phone = asString(value)
		case FieldCompany:
			c.Company = asString(value)
		case FieldJobTitle:
			c.JobTitle = asString(value)
		case FieldWebsite:
			c.Website = asString(value)
		case FieldLinkedIn:
			c.LinkedIn = asString(value)
		case FieldTwitter:
			c.Twitter = asString(value)
		case FieldAddress:
			c.Address = asString(value)
		case FieldCity:
			c.City = asString(value)
		case FieldState:
			c.State = asString(value)
		case FieldCountry:
			c.Country = asString(value)
		case FieldPostalCode:
			c.PostalCode = asString(value)
		case FieldIndustry:
			c.Industry = asString(value)
		case FieldEmployeesCount:
			c.EmployeesCount = asInt64Ptr(value)
		case FieldRevenue:
			c.Revenue = asInt64Ptr(value)
		case FieldIsActive:
			if b, ok := value.(bool); ok {
				c.IsActive = b
			}
		case FieldNotes:
			c.Notes = asString(value)
		case FieldTags:
			c.Tags = asString(value)
		}
	}
	return c
}

func asString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func asInt64Ptr(value any) *int64 {
	if i, ok := value.(int64); ok {
		return &i
	}
	return nil
}
