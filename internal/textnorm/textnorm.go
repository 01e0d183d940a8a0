// Package textnorm canonicalizes raw user input for matching.
//
// Two levels exist: loose normalization for forgiving keyword matching
// and strict normalization for puzzle-code lookup. Both are pure and
// total over arbitrary input.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// StrictKey holds the two strict-matching variants of an input:
// MatchKey keeps hyphens, MatchKeyNoSeparator drops them, so
// "KBN-302-F01" and "kbn302f01" resolve identically.
type StrictKey struct {
	MatchKey            string
	MatchKeyNoSeparator string
}

// hyphenLike covers the dash forms users actually type on Japanese
// keyboards, including the katakana prolonged-sound mark and its
// halfwidth form produced by width folding.
var hyphenLike = map[rune]bool{
	'-':      true,
	'‐': true, // hyphen
	'‑': true, // non-breaking hyphen
	'‒': true, // figure dash
	'–': true, // en dash
	'—': true, // em dash
	'―': true, // horizontal bar
	'−': true, // minus sign
	'ー': true, // katakana prolonged sound mark
	'－': true, // fullwidth hyphen-minus
	'ｰ': true, // halfwidth katakana prolonged sound mark
}

func isZeroWidth(r rune) bool {
	return (r >= '\u200b' && r <= '\u200d') || r == '\ufeff'
}

// NormalizeLoose canonicalizes text for keyword matching: zero-width
// characters stripped, full-width digits and Latin letters folded to
// ASCII, hyphen variants unified, whitespace removed, lower-cased.
func NormalizeLoose(text string) string {
	folded := width.Fold.String(text)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case isZeroWidth(r):
		case unicode.IsSpace(r):
		case hyphenLike[r]:
			b.WriteRune('-')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// NormalizeStrict canonicalizes text for code lookup: loose
// normalization followed by a character-class filter down to
// [a-z0-9-], plus a hyphen-free variant.
func NormalizeStrict(text string) StrictKey {
	loose := NormalizeLoose(text)

	var b strings.Builder
	b.Grow(len(loose))
	for _, r := range loose {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	key := b.String()
	return StrictKey{
		MatchKey:            key,
		MatchKeyNoSeparator: strings.ReplaceAll(key, "-", ""),
	}
}
