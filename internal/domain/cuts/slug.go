package cuts

import (
	"regexp"
	"strings"
)

// MaxSlugLen caps slugs in runes.
const MaxSlugLen = 50

var (
	reNonSlug = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	reSpaces  = regexp.MustCompile(`\s+`)
)

// Slugify lowercases s, drops everything except letters, digits, underscore,
// whitespace and hyphen, joins whitespace runs with a single underscore and
// caps the result at MaxSlugLen runes.
func Slugify(s string) string {
	s = reNonSlug.ReplaceAllString(strings.ToLower(s), "")
	s = reSpaces.ReplaceAllString(strings.TrimSpace(s), "_")
	if r := []rune(s); len(r) > MaxSlugLen {
		s = string(r[:MaxSlugLen])
	}
	return s
}
