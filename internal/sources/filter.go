package sources

import (
	"regexp"
	"strings"

	"flaneur/internal/core"
	"flaneur/internal/markdown"
)

// Filter decides whether a candidate survives. Filters never reorder or
// rewrite candidates.
type Filter interface {
	Name() string
	Keep(c Candidate) bool
}

// containsPhrase reports whether phrase appears in text on word
// boundaries, ignoring case and accents.
func containsPhrase(text, phrase string) bool {
	t := " " + normalizeWords(text) + " "
	p := normalizeWords(phrase)
	return p != "" && strings.Contains(t, " "+p+" ")
}

func normalizeWords(s string) string {
	s = strings.NewReplacer("'", "", "’", "", "&", " and ").Replace(markdown.Fold(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), " ")
}

func matchAny(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return p, true
		}
	}
	return "", false
}

// BaseBlueChipKeywords mark a sale as editorially significant anywhere.
var BaseBlueChipKeywords = []string{
	"contemporary art", "impressionist", "modern art", "post-war", "20th century", "21st century",
	"masterpiece", "masterworks", "magnificent jewels", "important watches", "surrealist",
}

// BlueChip keeps auctions whose title matches a base keyword or one of the
// hub's regional keywords.
type BlueChip struct {
	Base     []string
	Regional map[string][]string
}

func (BlueChip) Name() string { return "blue_chip" }

func (f BlueChip) Keep(c Candidate) bool {
	if _, ok := matchAny(c.Title, f.Base); ok {
		return true
	}
	_, ok := matchAny(c.Title, f.Regional[c.HubID])
	return ok
}

// DefaultChains are national and regional chains that never make an
// alfresco alert.
var DefaultChains = []string{
	"Starbucks", "McDonald's", "Dunkin", "Subway", "Chipotle", "Sweetgreen", "Pret A Manger",
	"Shake Shack", "Le Pain Quotidien", "Panera", "Chick-fil-A", "Domino's", "Burger King",
	"Wendy's", "Taco Bell", "Five Guys", "Joe & The Juice", "Blank Street", "Dos Toros",
	"Just Salad", "Cava", "7-Eleven", "Pizza Hut", "Papa John's", "Potbelly", "Bluestone Lane",
}

// ChainExclusion drops candidates whose subject is a chain.
type ChainExclusion struct {
	Chains []string
}

func (ChainExclusion) Name() string { return "chain_exclusion" }

func (f ChainExclusion) Keep(c Candidate) bool {
	name := c.Subject
	if name == "" {
		name = c.Title
	}
	_, chain := matchAny(name, f.Chains)
	return !chain
}

// SeatingApproved keeps dining permits with at least one approved seating
// type.
type SeatingApproved struct{}

func (SeatingApproved) Name() string { return "seating_approved" }

func (SeatingApproved) Keep(c Candidate) bool {
	ev, ok := c.Event.(core.OutdoorDiningEvent)
	return ok && (ev.SidewalkApproved || ev.RoadwayApproved)
}

var sensitivePattern = regexp.MustCompile(`(?i)\b(dies|died|dead|death|killed|murder\w*|shooting|stabb\w*|assault\w*|arrest\w*|lawsuit|sued|bankrupt\w*|layoffs?|scandal|abuse|overdose|fatal|suicide|recall(ed)?)\b`)

// SensitiveHeadline drops candidates whose title or summary reads as hard
// news rather than lifestyle coverage.
type SensitiveHeadline struct{}

func (SensitiveHeadline) Name() string { return "sensitive_headline" }

func (SensitiveHeadline) Keep(c Candidate) bool {
	return !sensitivePattern.MatchString(c.Title) && !sensitivePattern.MatchString(c.Summary)
}

// Brands is a keyword list of houses whose residencies are covered. Mega
// brands are framed as marquee events.
type Brands struct {
	Names []string
	Mega  []string
}

// DefaultBrands is the covered brand list.
var DefaultBrands = Brands{
	Names: []string{
		"Hermès", "Chanel", "Louis Vuitton", "Dior", "Cartier", "Aman", "Gucci", "Prada",
		"Loro Piana", "Bottega Veneta", "Tiffany", "Bulgari", "Van Cleef", "Celine", "Loewe",
		"Nobu", "Cipriani", "Carbone", "Sant Ambroeus", "Ralph Lauren", "Moncler", "Jacquemus",
		"Miu Miu", "Saint Laurent", "Fendi", "Valentino", "Zegna", "Brunello Cucinelli", "The Row",
	},
	Mega: []string{"Hermès", "Chanel", "Louis Vuitton", "Dior", "Cartier", "Aman"},
}

// Find returns the first brand named in text.
func (b Brands) Find(text string) (string, bool) {
	return matchAny(text, b.Names)
}

// BrandMatch keeps candidates that name a covered brand.
type BrandMatch struct {
	Brands Brands
}

func (BrandMatch) Name() string { return "brand_keywords" }

func (f BrandMatch) Keep(c Candidate) bool {
	_, ok := f.Brands.Find(c.Title + " " + c.Summary)
	return ok
}

// apply runs filters in order and returns the survivors plus the name of
// the filter that dropped each rejected candidate.
func apply(cands []Candidate, filters []Filter) ([]Candidate, map[string]int) {
	kept := make([]Candidate, 0, len(cands))
	dropped := make(map[string]int)
outer:
	for _, c := range cands {
		for _, f := range filters {
			if !f.Keep(c) {
				dropped[f.Name()]++
				continue outer
			}
		}
		kept = append(kept, c)
	}
	return kept, dropped
}
