package api

import (
	"strings"
	"unicode/utf8"

	"govjobs/internal/storage"
)

const maxObjectKeyLen = 200

// isValidDocumentObjectKey 确认对象路径位于该申请人的私有前缀下且为 PDF。
func isValidDocumentObjectKey(ownerID uint, key string) bool {
	if key == "" || !utf8.ValidString(key) || len(key) > maxObjectKeyLen {
		return false
	}
	if !strings.HasPrefix(key, storage.DocumentPrefix(ownerID)) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(key), ".pdf")
}
