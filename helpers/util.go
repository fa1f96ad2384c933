package helpers

import (
	"strings"
)

// NormalizeKey lowercases and trims a field value so that case and
// whitespace variants of the same listing collapse to one dedup key.
func NormalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// JoinKeyFields builds a dedup key out of normalized field values.
func JoinKeyFields(values []string) string {
	normalized := make([]string, len(values))
	for i, v := range values {
		normalized[i] = NormalizeKey(v)
	}
	return strings.Join(normalized, "\x1f")
}

// Slugify turns an offer name into a filename-safe stem.
func Slugify(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.NewReplacer(" ", "-", "/", "-", "\\", "-").Replace(value)
	return strings.Trim(value, "-")
}
