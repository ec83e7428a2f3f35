package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugInvalid    = regexp.MustCompile(`[^A-Za-z0-9_\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
)

// Slugify turns a display name into a URL slug: "Pasteles y Tartas" -> "pasteles-y-tartas",
// "Panadería" -> "panaderia".
func Slugify(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))),
		strings.ToLower(name),
	)
	if err != nil {
		folded = strings.ToLower(name)
	}
	s := slugInvalid.ReplaceAllString(folded, "")
	s = slugWhitespace.ReplaceAllString(strings.TrimSpace(s), "-")
	return strings.Trim(s, "-")
}

// FilterSlug is the first segment of a slug, used by the product filters.
func FilterSlug(slug string) string {
	first, _, _ := strings.Cut(slug, "-")
	return first
}
