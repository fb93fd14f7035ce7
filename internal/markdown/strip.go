// Package markdown converts generated markdown into plain text, previews,
// slugs and linked copy.
package markdown

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	// [[1]], [2] and [[3]](url) citation markers left by the generator
	citationPattern = regexp.MustCompile(`\[\[?\d+\]\]?(\([^)]*\))?`)

	// lenient fallbacks used when the document cannot be parsed
	linkPattern     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	emphasisPattern = regexp.MustCompile("[*_`#>~]+")
)

// Raw HTML is passed through so feed descriptions keep their text.
var renderer = goldmark.New(goldmark.WithRendererOptions(html.WithUnsafe()))

// StripMarkup returns the visible text of a markdown (or markdown with
// inline HTML) document with whitespace collapsed. Citation markers are
// removed. Malformed input falls back to a best-effort regex strip.
func StripMarkup(src string) string {
	src = citationPattern.ReplaceAllString(src, "")

	var buf bytes.Buffer
	if err := renderer.Convert([]byte(src), &buf); err != nil {
		return collapse(lenientStrip(src))
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return collapse(lenientStrip(src))
	}
	return collapse(doc.Text())
}

func lenientStrip(s string) string {
	s = linkPattern.ReplaceAllString(s, "$1")
	s = tagPattern.ReplaceAllString(s, " ")
	return emphasisPattern.ReplaceAllString(s, "")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// minSentenceCut is the shortest prefix accepted as a sentence-boundary cut.
const minSentenceCut = 50

const ellipsis = "..."

// TruncateToSentence shortens text to at most max runes. It prefers the
// last sentence end within [minSentenceCut, max]; otherwise it cuts at the
// last word boundary and appends an ellipsis unless the cut already ends a
// sentence.
func TruncateToSentence(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	r := []rune(text)

	for i := max - 1; i >= minSentenceCut-1; i-- {
		if isSentenceEnd(r, i) {
			return string(r[:i+1])
		}
	}

	limit := max - len(ellipsis)
	if limit < 1 {
		limit = max
	}
	cut := limit
	for i := limit; i > 0; i-- {
		if r[i] == ' ' {
			cut = i
			break
		}
	}
	out := strings.TrimRight(string(r[:cut]), " ,;:-")
	if strings.HasSuffix(out, ".") || strings.HasSuffix(out, "!") || strings.HasSuffix(out, "?") {
		return out
	}
	return out + ellipsis
}

// isSentenceEnd reports whether r[i] is terminal punctuation followed by
// whitespace or the end of the text.
func isSentenceEnd(r []rune, i int) bool {
	switch r[i] {
	case '.', '!', '?':
	default:
		return false
	}
	return i == len(r)-1 || r[i+1] == ' ' || r[i+1] == '\n'
}
