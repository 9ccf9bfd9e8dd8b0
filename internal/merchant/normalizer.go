// Package merchant canonicalizes free-text merchant names. The
// normalized form is the matching key for "same merchant" across rule
// matching and pattern grouping.
package merchant

import (
	"regexp"
	"strings"
)

var (
	leadingArticle = regexp.MustCompile(`^(?:le|la|les|un|une)\s+|^l'\s*`)
	legalSuffix    = regexp.MustCompile(`\s+(?:sarl|sas|sa|eurl|sci)$`)
	trailingJunk   = regexp.MustCompile(`[\s\d_-]+$`)
	innerSpace     = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes a raw merchant name: lowercase, strip leading
// French articles, strip trailing legal-entity suffixes and the
// digit/separator runs banks append as transaction IDs, and collapse
// whitespace. Total and idempotent; the stripping passes repeat until
// the value is stable so stripping one layer cannot expose another.
func Normalize(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	for {
		prev := s
		s = leadingArticle.ReplaceAllString(s, "")
		s = legalSuffix.ReplaceAllString(s, "")
		s = trailingJunk.ReplaceAllString(s, "")
		if s == prev {
			break
		}
	}
	s = innerSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
