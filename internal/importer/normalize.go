package importer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName reduces a person or publisher name to its dedup key:
// casefold, fold diacritics, drop everything that is not a letter or digit.
// "J.D. Salinger", "J. D. Salinger" and "j d salinger" share one key.
func NormalizeName(raw string) string {
	return squash(foldDiacritics(strings.ToLower(strings.TrimSpace(raw))))
}

// NormalizeTitle reduces a book title to its dedup key. Titles additionally
// drop bracketed segments (series markers, edition notes) and anything after
// a subtitle colon, so "The Hobbit (Middle-earth, #1)" and "The Hobbit"
// converge.
func NormalizeTitle(raw string) string {
	title := strings.ToLower(strings.TrimSpace(raw))
	title = stripBracketed(title)
	if idx := strings.IndexByte(title, ':'); idx >= 0 {
		title = title[:idx]
	}
	return squash(foldDiacritics(title))
}

func squash(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripBracketed(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	depth := 0
	for _, r := range value {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
				continue
			}
		}
		if depth == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var diacriticsFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldDiacritics(value string) string {
	folded, _, err := transform.String(diacriticsFolder, value)
	if err != nil {
		return value
	}
	return folded
}
