package portal

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	PDFMIMEType = "application/pdf"
	// MaxUploadBytes is inclusive: a file of exactly this size is accepted.
	MaxUploadBytes int64 = 10 * 1024 * 1024
)

// FileMeta is what the browser tells us about an upload.
type FileMeta struct {
	Name     string
	MIMEType string
	Size     int64
}

// ValidateUpload applies the PDF-only acceptance rules. The MIME check comes
// first, so a non-PDF type is rejected whatever the extension says.
func ValidateUpload(f FileMeta) error {
	mimeType := strings.ToLower(strings.TrimSpace(f.MIMEType))
	if mimeType != PDFMIMEType {
		return &ValidationError{Field: "file", Message: fmt.Sprintf("only PDF files are accepted (got %q)", f.MIMEType)}
	}
	if f.Size <= 0 {
		return &ValidationError{Field: "file", Message: "file is empty"}
	}
	if f.Size > MaxUploadBytes {
		return &ValidationError{Field: "file", Message: fmt.Sprintf("file is larger than 10 MB (%d bytes)", f.Size)}
	}
	if !strings.EqualFold(filepath.Ext(f.Name), ".pdf") {
		return &ValidationError{Field: "file", Message: "file name must end with .pdf"}
	}
	return nil
}

var pdfMagic = []byte("%PDF-")

// LooksLikePDF checks the leading bytes of the content.
func LooksLikePDF(head []byte) bool {
	return bytes.HasPrefix(head, pdfMagic)
}

// TruncateName cuts s to at most maxBytes without splitting a character.
func TruncateName(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	n := maxBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
