package tagging

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldAccents lower-cases s, maps đ to d and drops combining marks.
// A fresh transformer per call keeps it safe for concurrent use.
func foldAccents(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "đ", "d")
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeChemical prepares text for chemical-name matching.
// It keeps '+', '-' and '/' so names like "s-metolachlor" survive.
func NormalizeChemical(s string) string {
	return collapse(foldAccents(s), func(r rune) bool {
		return isASCIIAlnum(r) || r == '+' || r == '-' || r == '/'
	})
}

// NormalizeEntity prepares text for crop/pest/disease/weed matching.
// All punctuation, '-' included, becomes a space so "khoai-mi" equals "khoai mi".
func NormalizeEntity(s string) string {
	return collapse(foldAccents(s), isASCIIAlnum)
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// collapse replaces every rune failing keep with a space and squeezes runs of spaces.
func collapse(s string, keep func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// containsWord reports whether phrase occurs in text bounded by spaces.
// Both arguments must already be normalized with the same normalizer.
func containsWord(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// Words splits lower-cased text into letter/digit runs, keeping accents.
func Words(s string) []string {
	s = norm.NFC.String(strings.ToLower(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
}

// ContainsPhrase reports whether the word sequence of phrase appears in text.
// Accents are significant: "đó" does not match "đỏ".
func ContainsPhrase(text, phrase string) bool {
	return containsWord(strings.Join(Words(text), " "), strings.Join(Words(phrase), " "))
}

// ContainsAnyPhrase reports whether any phrase appears in text.
func ContainsAnyPhrase(text string, phrases []string) bool {
	joined := strings.Join(Words(text), " ")
	for _, p := range phrases {
		if containsWord(joined, strings.Join(Words(p), " ")) {
			return true
		}
	}
	return false
}
