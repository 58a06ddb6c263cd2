package utils

import (
	"strings"
)

// NormalizeHeader canonicalizes a workbook column header for lookups:
// surrounding whitespace stripped, inner runs of whitespace collapsed to a
// single space, lowercased.
func NormalizeHeader(raw string) string {
	normalized := strings.TrimSpace(raw)
	normalized = strings.Join(strings.Fields(normalized), " ")
	normalized = strings.ToLower(normalized)
	return normalized
}
