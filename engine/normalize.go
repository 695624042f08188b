package engine

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeTerm lowercases and NFKC-normalizes a phrase for lexicon lookup
// and embedding. Span offsets always refer to the original text; only the
// comparison form is normalized.
func normalizeTerm(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.Join(fields, " "))
}
