package markdown

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSlugRunes caps the headline portion of a slug.
const maxSlugRunes = 60

// Slugify lowercases s, folds accents to ASCII and joins alphanumeric runs
// with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range Fold(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		if r == '\'' || r == '’' {
			continue
		}
		pendingDash = true
	}

	slug := b.String()
	if len(slug) > maxSlugRunes {
		slug = slug[:maxSlugRunes]
		if i := strings.LastIndexByte(slug, '-'); i > maxSlugRunes/2 {
			slug = slug[:i]
		}
		slug = strings.TrimRight(slug, "-")
	}
	return slug
}

// Fold lowercases s and strips diacritics, so "Hermès" and "hermes" compare
// equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
