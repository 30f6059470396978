package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/minio/minio-go/v7"
)

func TestObjectKeys(t *testing.T) {
	key := DocumentObjectKey(7, "abc")
	if key != "applicant-documents/7/abc.pdf" {
		t.Fatalf("unexpected document key %q", key)
	}
	if !strings.HasPrefix(key, DocumentPrefix(7)) {
		t.Fatalf("key %q outside prefix %q", key, DocumentPrefix(7))
	}
	if got := SummaryObjectKey(3, 11); got != "application-summaries/3/11.pdf" {
		t.Fatalf("unexpected summary key %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	got := sanitizeFilename(" ../Diploma \"final\".pdf\n")
	if got != "..Diploma final.pdf" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
	if n := len(sanitizeFilename(strings.Repeat("a", 300))); n != 120 {
		t.Fatalf("expected truncation to 120, got %d", n)
	}
	if got := sanitizeFilename(strings.Repeat("ñ", 100)); !utf8.ValidString(got) || len(got) != 120 {
		t.Fatalf("expected valid 120-byte name, got %d bytes valid=%t", len(got), utf8.ValidString(got))
	}
}

func TestIsNoSuchKey(t *testing.T) {
	if IsNoSuchKey(nil) {
		t.Fatal("nil is not a missing key")
	}
	wrapped := fmt.Errorf("remove: %w", minio.ErrorResponse{Code: "NoSuchKey"})
	if !IsNoSuchKey(wrapped) {
		t.Fatal("expected wrapped NoSuchKey to match")
	}
	if IsNoSuchKey(errors.New("connection refused")) {
		t.Fatal("unexpected match on network error")
	}
}

func TestIsNoSuchKey_StatusFallback(t *testing.T) {
	if !IsNoSuchKey(minio.ErrorResponse{StatusCode: 404}) {
		t.Fatal("expected bare 404 to count as missing object")
	}
	if IsNoSuchKey(minio.ErrorResponse{StatusCode: 404, Code: "NoSuchBucket"}) {
		t.Fatal("missing bucket is a configuration error, not a missing object")
	}
}
