package attendance

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeName normalizes a name for search (lowercase, no diacritics, spaces for dashes).
func NormalizeName(name string) string {
	name = RemoveDiacritics(strings.TrimSpace(name))
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, "-", " ")
}

// MatchesQuery reports whether u matches a free text search over name,
// employee id and department. An empty query matches everyone.
func MatchesQuery(u User, query string) bool {
	q := NormalizeName(query)
	if q == "" {
		return true
	}
	for _, field := range []string{u.Name, u.EmployeeID, u.Department} {
		if strings.Contains(NormalizeName(field), q) {
			return true
		}
	}
	return false
}
