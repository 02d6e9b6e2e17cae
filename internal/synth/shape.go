// Package synth assembles speech audio from an annotated script. It calls the
// TTS provider once per segment, inserts explicit silence for pauses, and
// emits the timing map that places every segment on the audio timeline.
package synth

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ShapeEmphasis uppercases the first whole-word occurrence of each emphasis
// token in text so the TTS engine stresses it. Matching is case-insensitive
// and never touches substrings inside larger words ("AI" must not rewrite
// "maintain").
func ShapeEmphasis(text string, emphasis []string) string {
	for _, word := range emphasis {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		start, end := matchWholeWordFold(text, word)
		if start < 0 {
			continue
		}
		text = text[:start] + strings.ToUpper(text[start:end]) + text[end:]
	}
	return text
}

// matchWholeWordFold returns the byte span of the first case-insensitive
// whole-word occurrence of word in text, or (-1, -1). The span is measured on
// text itself, so case folds that change byte length cannot skew the splice.
func matchWholeWordFold(text, word string) (int, int) {
	runes := []rune(word)
	if len(runes) == 0 {
		return -1, -1
	}
	for start := 0; start < len(text); {
		_, size := utf8.DecodeRuneInString(text[start:])
		if boundaryBefore(text, start) {
			if end, ok := foldedPrefix(text, start, runes); ok && boundaryAfter(text, end) {
				return start, end
			}
		}
		start += size
	}
	return -1, -1
}

// foldedPrefix reports whether text[start:] begins with word under simple
// case folding, returning the byte offset just past the match.
func foldedPrefix(text string, start int, word []rune) (int, bool) {
	i := start
	for _, w := range word {
		r, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 || unicode.ToLower(r) != unicode.ToLower(w) {
			return 0, false
		}
		i += size
	}
	return i, true
}

// boundaryBefore reports whether the rune ending at pos is outside the text
// or not a letter or digit.
func boundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// boundaryAfter reports whether the rune starting at pos is outside the text
// or not a letter or digit.
func boundaryAfter(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
