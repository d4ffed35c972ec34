package search

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bilgisen/kafkaesque/internal/models"
	"github.com/bilgisen/kafkaesque/internal/utils"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// tokenThreshold is the largest normalized edit distance a query token may
	// have to a word and still count as a match
	tokenThreshold = 0.35
	// scoreCutoff drops weak results; lower scores are better
	scoreCutoff = 0.4
	// fieldPenalty is added in full to the lightest field and not at all to the title
	fieldPenalty = 0.1
	// minTokenLength ignores query tokens too short to match meaningfully
	minTokenLength = 2
	// subsequenceFactor scales the length gap of a subsequence match
	subsequenceFactor = 0.6
)

type field struct {
	name   string
	weight float64
}

var fields = []field{
	{"title", 0.6},
	{"subtitle", 0.3},
	{"tags", 0.3},
	{"brief", 0.2},
	{"content", 0.1},
}

const maxWeight = 0.6

type fieldText struct {
	text  string
	words []string
}

type entry struct {
	fields []fieldText
}

// Index is an immutable fuzzy-search structure over one corpus snapshot
type Index struct {
	Posts   []models.Post
	BuiltAt time.Time
	Version string
	entries []entry
}

type match struct {
	pos   int
	score float64
}

func newIndex(posts []models.Post, builtAt time.Time, version string) *Index {
	ix := &Index{
		Posts:   posts,
		BuiltAt: builtAt,
		Version: version,
		entries: make([]entry, len(posts)),
	}
	for i, p := range posts {
		tagNames := make([]string, 0, len(p.Tags))
		for _, t := range p.Tags {
			tagNames = append(tagNames, t.Name)
		}
		raw := []string{
			p.Title,
			p.Subtitle,
			strings.Join(tagNames, " "),
			p.Brief,
			utils.StripHTML(p.Content),
		}
		e := entry{fields: make([]fieldText, len(raw))}
		for j, r := range raw {
			text := fold(r)
			e.fields[j] = fieldText{text: text, words: uniqueWords(text)}
		}
		ix.entries[i] = e
	}
	return ix
}

// Search returns at most max posts matching query, best match first
func (ix *Index) Search(query string, max int) []models.Post {
	q := fold(strings.TrimSpace(query))
	if q == "" || max <= 0 {
		return []models.Post{}
	}

	var tokens []string
	for _, tok := range tokenize(q) {
		if utf8.RuneCountInString(tok) >= minTokenLength {
			tokens = append(tokens, tok)
		}
	}

	matches := make([]match, 0)
	for i := range ix.entries {
		score := ix.entries[i].score(q, tokens)
		if score <= scoreCutoff {
			matches = append(matches, match{pos: i, score: score})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].score < matches[b].score
	})

	if len(matches) > max {
		matches = matches[:max]
	}
	out := make([]models.Post, 0, len(matches))
	for _, m := range matches {
		out = append(out, ix.Posts[m.pos])
	}
	return out
}

// score is the best weighted field score of the entry; 1 means no match
func (e *entry) score(q string, tokens []string) float64 {
	best := 1.0
	for i, f := range fields {
		s := fieldScore(e.fields[i], q, tokens)
		if s >= 1 {
			continue
		}
		s += (1 - f.weight/maxWeight) * fieldPenalty
		if s < best {
			best = s
		}
	}
	return best
}

// fieldScore is 0 when the whole query occurs in the field, otherwise the
// score of its worst matching token
func fieldScore(ft fieldText, q string, tokens []string) float64 {
	if ft.text == "" {
		return 1
	}
	if strings.Contains(ft.text, q) {
		return 0
	}
	if len(tokens) == 0 {
		return 1
	}

	worst := 0.0
	for _, tok := range tokens {
		s := tokenScore(tok, ft.words)
		if s >= 1 {
			return 1
		}
		if s > worst {
			worst = s
		}
	}
	return worst
}

func tokenScore(tok string, words []string) float64 {
	best := 1.0
	tl := utf8.RuneCountInString(tok)
	for _, w := range words {
		if w == tok {
			return 0
		}
		wl := utf8.RuneCountInString(w)
		longest := tl
		if wl > longest {
			longest = wl
		}

		if wl > tl && fuzzy.Match(tok, w) {
			if s := subsequenceFactor * float64(wl-tl) / float64(wl); s < best {
				best = s
			}
		}

		gap := wl - tl
		if gap < 0 {
			gap = -gap
		}
		if float64(gap) > tokenThreshold*float64(longest) {
			continue
		}
		if s := float64(fuzzy.LevenshteinDistance(tok, w)) / float64(longest); s < best {
			best = s
		}
	}
	if best > tokenThreshold {
		return 1
	}
	return best
}

// fold lowercases and strips diacritics so "Café" matches "cafe"
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func uniqueWords(text string) []string {
	words := tokenize(text)
	seen := make(map[string]struct{}, len(words))
	out := words[:0]
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
