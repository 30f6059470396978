package portal

import (
	"strings"
)

// DocumentType is the category an uploaded document is filed under.
type DocumentType string

const (
	DocApplicationLetter    DocumentType = "application_letter"
	DocPDS                  DocumentType = "pds"
	DocWES                  DocumentType = "wes"
	DocEligibility          DocumentType = "eligibility"
	DocTranscript           DocumentType = "transcript"
	DocDiploma              DocumentType = "diploma"
	DocPerformanceRating    DocumentType = "performance_rating"
	DocTrainingCertificates DocumentType = "training_certificates"
	DocServiceRecord        DocumentType = "service_record"
	DocOther                DocumentType = "other"
)

// CatalogEntry describes one checklist row.
type CatalogEntry struct {
	Type        DocumentType `json:"type"`
	Label       string       `json:"label"`
	Description string       `json:"description"`
	Required    bool         `json:"required"`
}

var catalog = []CatalogEntry{
	{
		Type:        DocApplicationLetter,
		Label:       "Application Letter",
		Description: "Indicate the position, plantilla number, and place of assignment",
		Required:    true,
	},
	{
		Type:        DocPDS,
		Label:       "Personal Data Sheet (CSC Form 212, Revised)",
		Description: "Fully accomplished and signed",
		Required:    true,
	},
	{
		Type:        DocWES,
		Label:       "Work Experience Sheet (WES)",
		Description: "Required for supervisory or technical positions",
		Required:    false,
	},
	{
		Type:        DocEligibility,
		Label:       "Eligibility / License / Rating Certificate",
		Description: "Authenticated copy (if applicable)",
		Required:    false,
	},
	{
		Type:        DocTranscript,
		Label:       "Transcript of Records",
		Description: "Certified true copy",
		Required:    true,
	},
	{
		Type:        DocDiploma,
		Label:       "Diploma",
		Description: "Certified true copy",
		Required:    true,
	},
	{
		Type:        DocPerformanceRating,
		Label:       "Performance Rating",
		Description: "For current government employees",
		Required:    false,
	},
	{
		Type:        DocTrainingCertificates,
		Label:       "Certificates of Training",
		Description: "Relevant to the position applied for",
		Required:    false,
	},
	{
		Type:        DocServiceRecord,
		Label:       "Service Record / Certificate of Employment",
		Description: "Service Record for government employees or Certificate of Employment for non-government",
		Required:    true,
	},
}

// Catalog returns a copy of the ordered document checklist.
func Catalog() []CatalogEntry {
	out := make([]CatalogEntry, len(catalog))
	copy(out, catalog)
	return out
}

// RequiredTypes returns the required categories in checklist order.
func RequiredTypes() []DocumentType {
	var out []DocumentType
	for _, e := range catalog {
		if e.Required {
			out = append(out, e.Type)
		}
	}
	return out
}

// Label returns the checklist label, or a prettified type name for "other"
// and unknown values.
func (t DocumentType) Label() string {
	for _, e := range catalog {
		if e.Type == t {
			return e.Label
		}
	}
	s := strings.ReplaceAll(string(t), "_", " ")
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (t DocumentType) Valid() bool {
	if t == DocOther {
		return true
	}
	for _, e := range catalog {
		if e.Type == t {
			return true
		}
	}
	return false
}

// ParseDocumentType accepts any checklist category plus "other".
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &ValidationError{Field: "file_type", Message: "unknown document type " + strings.TrimSpace(s)}
	}
	return t, nil
}
