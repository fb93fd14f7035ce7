package markdown

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Link is a span of body text to turn into a markdown link.
type Link struct {
	Text string
	URL  string
}

var markdownLink = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)

// InjectHyperlinks rewrites the first whole-word occurrence of each link
// text in body into [text](url). Longer texts are placed first so a shorter candidate
// that is a prefix of a longer one never produces a nested link. A
// candidate whose first occurrence already sits inside a link is skipped.
func InjectHyperlinks(body string, links []Link) string {
	ordered := make([]Link, 0, len(links))
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		text := strings.TrimSpace(l.Text)
		if text == "" || l.URL == "" || seen[text] {
			continue
		}
		seen[text] = true
		ordered = append(ordered, Link{Text: text, URL: l.URL})
	}
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i].Text) > len(ordered[j].Text) })

	for _, l := range ordered {
		idx := wordIndex(body, l.Text)
		if idx < 0 || insideLink(body, idx) {
			continue
		}
		body = body[:idx] + "[" + l.Text + "](" + l.URL + ")" + body[idx+len(l.Text):]
	}
	return body
}

// wordIndex is strings.Index restricted to matches not embedded in a
// longer word, so "Aman" never matches inside "Amanda".
func wordIndex(s, sub string) int {
	for from := 0; from <= len(s)-len(sub); {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return -1
		}
		i += from
		before, _ := utf8.DecodeLastRuneInString(s[:i])
		after, _ := utf8.DecodeRuneInString(s[i+len(sub):])
		first, _ := utf8.DecodeRuneInString(sub)
		last, _ := utf8.DecodeLastRuneInString(sub)
		if !(isWordRune(first) && isWordRune(before)) && !(isWordRune(last) && isWordRune(after)) {
			return i
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		from = i + size
	}
	return -1
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func insideLink(body string, idx int) bool {
	for _, span := range markdownLink.FindAllStringIndex(body, -1) {
		if idx >= span[0] && idx < span[1] {
			return true
		}
	}
	return false
}

// SearchURL builds a web-search URL for an entity, scoped to a city when
// one is given.
func SearchURL(entity, city string) string {
	q := strings.TrimSpace(entity)
	if city != "" {
		q += " " + city
	}
	return "https://www.google.com/search?q=" + url.QueryEscape(q)
}

// SearchLinks pairs each link text with its SearchURL.
func SearchLinks(texts []string, city string) []Link {
	out := make([]Link, 0, len(texts))
	for _, t := range texts {
		out = append(out, Link{Text: t, URL: SearchURL(t, city)})
	}
	return out
}
