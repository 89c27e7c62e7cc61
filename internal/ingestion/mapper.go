package ingestion

import (
	"strings"

	"github.com/contactkit/importer/internal/domain"
)

// fieldKeywords lists, per canonical field, the normalized header spellings
// seen in the wild. Order matters twice: earlier fields win scoring ties, and
// AutoDetect assigns each field to the first header that claims it.
var fieldKeywords = []struct {
	field    string
	keywords []string
}{
	{domain.FieldEmail, []string{"email", "emailaddress", "mail"}},
	{domain.FieldFirstName, []string{"firstname", "fname", "first", "givenname"}},
	{domain.FieldLastName, []string{"lastname", "lname", "last", "surname", "familyname"}},
	{domain.FieldFullName, []string{"fullname", "name", "contactname"}},
	{domain.FieldPhone, []string{"phone", "phonenumber", "mobile", "telephone", "tel"}},
	{domain.FieldCompany, []string{"company", "companyname", "organization", "organisation", "employer"}},
	{domain.FieldJobTitle, []string{"jobtitle", "title", "position", "role"}},
	{domain.FieldWebsite, []string{"website", "url", "web", "homepage"}},
	{domain.FieldLinkedIn, []string{"linkedin", "linkedinurl", "linkedinprofile"}},
	{domain.FieldTwitter, []string{"twitter", "twitterhandle"}},
	{domain.FieldAddress, []string{"address", "street", "streetaddress"}},
	{domain.FieldCity, []string{"city", "town"}},
	{domain.FieldState, []string{"state", "province"}},
	{domain.FieldCountry, []string{"country", "nation"}},
	{domain.FieldPostalCode, []string{"postalcode", "zipcode", "zip", "postcode"}},
	{domain.FieldIndustry, []string{"industry", "sector"}},
	{domain.FieldEmployeesCount, []string{"employeescount", "employees", "headcount", "companysize", "numemployees"}},
	{domain.FieldRevenue, []string{"revenue", "annualrevenue", "turnover"}},
	{domain.FieldIsActive, []string{"isactive", "active", "status", "enabled"}},
	{domain.FieldNotes, []string{"notes", "note", "comments", "description"}},
	{domain.FieldTags, []string{"tags", "tag", "labels", "keywords"}},
}

// substring matches below this length produce too many false hits.
const minSubstringKeyword = 4

// normalizeHeader lowercases a raw header and strips separators so that
// "E-Mail", "email_address" and "Email Address" all compare equal.
func normalizeHeader(header string) string {
	header = strings.ToLower(strings.TrimSpace(header))
	replacer := strings.NewReplacer(" ", "", "-", "", "_", "", ".", "", "/", "")
	return replacer.Replace(header)
}

// MatchField maps one raw header to a canonical field. Exact keyword matches
// win outright; otherwise the longest keyword contained in (or containing)
// the header wins. Empty string means no match.
func MatchField(header string) string {
	normalized := normalizeHeader(header)
	if normalized == "" {
		return ""
	}

	for _, entry := range fieldKeywords {
		for _, keyword := range entry.keywords {
			if normalized == keyword {
				return entry.field
			}
		}
	}

	bestField := ""
	bestScore := 0
	for _, entry := range fieldKeywords {
		for _, keyword := range entry.keywords {
			if len(keyword) < minSubstringKeyword {
				continue
			}
			if strings.Contains(normalized, keyword) || strings.Contains(keyword, normalized) {
				if len(keyword) > bestScore {
					bestField = entry.field
					bestScore = len(keyword)
				}
			}
		}
	}
	return bestField
}

// AutoDetect builds a column mapping for the given raw headers. Each
// canonical field is claimed by at most one header (first occurrence wins),
// so an auto-detected mapping never carries conflicts. Headers that match
// nothing are left out of the mapping and dropped from the record.
func AutoDetect(headers []string) domain.ColumnMapping {
	mapping := make(domain.ColumnMapping)
	claimed := make(map[string]bool)

	for _, header := range headers {
		if strings.TrimSpace(header) == "" {
			continue
		}
		if _, seen := mapping[header]; seen {
			continue
		}
		field := MatchField(header)
		if field == "" || claimed[field] {
			continue
		}
		mapping[header] = field
		claimed[field] = true
	}

	return mapping
}
