package utils

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// StripHTML removes every tag, unescapes entities and collapses whitespace
func StripHTML(input string) string {
	if input == "" {
		return ""
	}
	cleaned := html.UnescapeString(stripPolicy.Sanitize(input))
	return strings.Join(strings.Fields(cleaned), " ")
}

// Truncate shortens s to at most max runes, cutting on a word boundary and
// appending an ellipsis when anything was dropped
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}
