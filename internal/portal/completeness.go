package portal

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// MinCoverLetterLength is counted in characters, not bytes.
const MinCoverLetterLength = 50

// UploadedDocument is the slice of a stored document the checklist needs.
type UploadedDocument struct {
	ID         uint
	Type       DocumentType
	UploadedAt time.Time
}

// SelectPerCategory maps each category to one document. The first upload
// of a category wins: later uploads of the same category never replace it,
// the applicant has to delete the earlier one first.
func SelectPerCategory(docs []UploadedDocument) map[DocumentType]uint {
	ordered := make([]UploadedDocument, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].UploadedAt.Equal(ordered[j].UploadedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].UploadedAt.Before(ordered[j].UploadedAt)
	})

	selected := make(map[DocumentType]uint, len(ordered))
	for _, d := range ordered {
		if _, ok := selected[d.Type]; ok {
			continue
		}
		selected[d.Type] = d.ID
	}
	return selected
}

// Completeness is the outcome of the submit gate.
type Completeness struct {
	Complete            bool           `json:"complete"`
	Missing             []DocumentType `json:"missing"`
	CoverLetterLength   int            `json:"cover_letter_length"`
	CoverLetterTooShort bool           `json:"cover_letter_too_short"`
}

// CheckCompleteness reports whether an application may be submitted: every
// required entry of the catalog has an uploaded document and the cover letter
// is at least MinCoverLetterLength characters. Missing is in catalog order.
func CheckCompleteness(entries []CatalogEntry, uploaded map[DocumentType]uint, coverLetter string) Completeness {
	res := Completeness{
		Missing:           []DocumentType{},
		CoverLetterLength: utf8.RuneCountInString(coverLetter),
	}
	for _, e := range entries {
		if !e.Required {
			continue
		}
		if _, ok := uploaded[e.Type]; !ok {
			res.Missing = append(res.Missing, e.Type)
		}
	}
	res.CoverLetterTooShort = res.CoverLetterLength < MinCoverLetterLength
	res.Complete = len(res.Missing) == 0 && !res.CoverLetterTooShort
	return res
}

// Err turns an incomplete result into a ValidationError, nil when complete.
func (c Completeness) Err() error {
	if c.Complete {
		return nil
	}
	var parts []string
	if len(c.Missing) > 0 {
		labels := make([]string, 0, len(c.Missing))
		for _, t := range c.Missing {
			labels = append(labels, t.Label())
		}
		parts = append(parts, "missing required documents: "+strings.Join(labels, ", "))
	}
	if c.CoverLetterTooShort {
		parts = append(parts, fmt.Sprintf("cover letter must be at least %d characters (%d/%d)", MinCoverLetterLength, c.CoverLetterLength, MinCoverLetterLength))
	}
	return &ValidationError{Message: strings.Join(parts, "; ")}
}

// ValidateCoverLetter checks only the length rule.
func ValidateCoverLetter(s string) error {
	n := utf8.RuneCountInString(s)
	if n < MinCoverLetterLength {
		return &ValidationError{
			Field:   "cover_letter",
			Message: fmt.Sprintf("must be at least %d characters (%d/%d)", MinCoverLetterLength, n, MinCoverLetterLength),
		}
	}
	return nil
}
