package reshape

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	crlfPattern    = regexp.MustCompile(`[\n\r]`)
	invalidPattern = regexp.MustCompile(`[^A-Za-z0-9_\s]`)

	// Decompose, drop combining marks, recompose: "Příliš" -> "Prilis".
	unaccenter = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// SanitizeName normalizes a header or table name fragment so it is safe as a
// destination column/table identifier. The exact rule chain is load-bearing:
// existing destination tables were named with it, so changing any step breaks
// the mapping for already-configured sheets.
//
// Steps: "#" becomes the literal "count", accents are stripped, newlines are
// removed, anything outside [A-Za-z0-9_\s] is dropped, surrounding whitespace
// is trimmed, interior spaces become underscores, and results shorter than
// two characters collapse to "empty".
func SanitizeName(s string) string {
	s = strings.ReplaceAll(s, "#", "count")
	if out, _, err := transform.String(unaccenter, s); err == nil {
		s = out
	}
	s = crlfPattern.ReplaceAllString(s, "")
	s = invalidPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")

	if len(s) < 2 {
		return "empty"
	}
	return s
}
