package util

import "fmt"

// ResponseExcerptLen caps remote response bodies quoted inside errors and
// log lines. Export downloads can be megabytes; error channels must not be.
const ResponseExcerptLen = 300

// Truncate shortens s to at most maxLen bytes, annotating the cut with the
// original size so the full length stays diagnosable.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// Excerpt returns a bounded excerpt of a remote response body, suitable for
// embedding in user-facing errors.
func Excerpt(b []byte) string {
	return Truncate(string(b), ResponseExcerptLen)
}
