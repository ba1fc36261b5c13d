// Package transcript normalizes server transcriptions before display.
package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

// Options controls transcription formatting.
type Options struct {
	CapitalizeSentences bool
}

var (
	pronounIPattern = regexp.MustCompile(`\bi\b(['’](?:m|d|ll|ve|re|s)\b)?`)

	// nonTerminalAbbreviations never end a sentence on their trailing period.
	nonTerminalAbbreviations = map[string]struct{}{
		"cf": {}, "dr": {}, "e.g": {}, "eq": {}, "fig": {}, "i.e": {},
		"jr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "sr": {}, "st": {},
	}
)

// Normalize collapses whitespace and optionally applies sentence case.
// Normalize is idempotent.
func Normalize(text string, opts Options) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" || !opts.CapitalizeSentences {
		return normalized
	}
	return capitalizePronounI(capitalizeSentenceStarts(normalized))
}

func capitalizeSentenceStarts(text string) string {
	runes := []rune(text)
	capitalize := true
	for i, r := range runes {
		switch {
		case capitalize && unicode.IsLetter(r):
			runes[i] = unicode.ToUpper(r)
			capitalize = false
		case capitalize && unicode.IsDigit(r):
			capitalize = false
		case r == '!' || r == '?':
			capitalize = true
		case r == '.':
			capitalize = isSentenceEnd(runes, i)
		}
	}
	return string(runes)
}

// isSentenceEnd reports whether the period at idx terminates a sentence.
func isSentenceEnd(runes []rune, idx int) bool {
	if idx+1 < len(runes) && !unicode.IsSpace(runes[idx+1]) && !isClosingRune(runes[idx+1]) {
		return false // 3.5, example.com
	}
	start := idx
	for start > 0 && (unicode.IsLetter(runes[start-1]) || runes[start-1] == '.') {
		start--
	}
	token := strings.ToLower(string(runes[start:idx]))
	_, known := nonTerminalAbbreviations[token]
	return !known
}

func isClosingRune(r rune) bool {
	switch r {
	case ')', ']', '\'', '"', '’', '”':
		return true
	default:
		return false
	}
}

// capitalizePronounI upper-cases standalone i, leaving initialisms like i.e. alone.
func capitalizePronounI(text string) string {
	matches := pronounIPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	out.Grow(len(text))
	last := 0
	for _, m := range matches {
		start := m[0]
		out.WriteString(text[last:start])
		if isInitialism(text, start) {
			out.WriteByte(text[start])
		} else {
			out.WriteByte('I')
		}
		last = start + 1
	}
	out.WriteString(text[last:])
	return out.String()
}

func isInitialism(text string, start int) bool {
	return start+2 < len(text) && text[start+1] == '.' && unicode.IsLetter(rune(text[start+2]))
}
