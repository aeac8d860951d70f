// Package textutil holds the text normalization and tokenization shared by
// the lexical index, the grounding check and citation rendering.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Ellipsis marks truncated text.
const Ellipsis = "..."

// Fold applies NFKC normalization and Unicode case folding.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	return cases.Fold().String(norm.NFKC.String(s))
}

// WhitespaceTokenSet splits folded text on whitespace and returns the set
// of distinct tokens.
func WhitespaceTokenSet(s string) map[string]struct{} {
	fields := strings.Fields(Fold(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Overlaps reports whether two token sets share at least one token.
func Overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for tok := range a {
		if _, ok := b[tok]; ok {
			return true
		}
	}
	return false
}

// WordTokens returns runs of letters or digits of at least two runes,
// folded. Single-rune tokens are dropped.
func WordTokens(s string) []string {
	folded := Fold(s)
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := tokens[:0]
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) >= 2 {
			out = append(out, tok)
		}
	}
	return out
}

// Truncate cuts s to at most max runes. When text is cut the result ends
// with Ellipsis and still fits within max.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= len(Ellipsis) {
		return string([]rune(s)[:max])
	}
	runes := []rune(s)
	return string(runes[:max-len(Ellipsis)]) + Ellipsis
}

// Prefix returns the first max runes of s without any marker.
func Prefix(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
