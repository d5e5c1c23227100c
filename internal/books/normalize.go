package books

import (
	"strings"
	"unicode"
)

var accentFold = strings.NewReplacer(
	"á", "a",
	"é", "e",
	"í", "i",
	"ó", "o",
	"ú", "u",
	"ü", "u",
)

// Normalize produces the canonical form of a title or author string
// used for matching: lowercase, accents folded ("ñ" kept), punctuation
// stripped, whitespace collapsed, and the literal "100" spelled out as
// "cien" so "100 años de soledad" matches either way people type it.
//
// Idempotent, and the output contains no LIKE metacharacters, so it
// can be bound into LIKE patterns as-is.
func Normalize(s string) string {
	s = accentFold.Replace(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 'ñ':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	// After stripping, so punctuation-split digits ("1.00") can never
	// surface a fresh "100" on a later pass.
	s = strings.ReplaceAll(b.String(), "100", "cien")

	return strings.Join(strings.Fields(s), " ")
}
