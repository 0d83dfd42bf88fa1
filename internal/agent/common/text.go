package common

import (
	"regexp"
	"strings"
	"unicode"
)

var asciiWord = regexp.MustCompile(`^[a-z0-9 ]+$`)

// NormalizeQuery folds case and trims surrounding whitespace.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Truncate shortens s to at most max runes, ending with suffix when cut.
func Truncate(s string, max int, suffix string) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	sfx := []rune(suffix)
	if len(sfx) >= max {
		return string(runes[:max])
	}
	return string(runes[:max-len(sfx)]) + suffix
}

// Preview is Truncate with the usual ellipsis, used for log fields.
func Preview(s string, max int) string {
	return Truncate(s, max, "...")
}

// CleanText collapses whitespace and drops control and symbol characters.
func CleanText(text string) string {
	text = whitespace.ReplaceAllString(strings.TrimSpace(text), " ")
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		case strings.ContainsRune("-.,!?！？。：，", r):
			return r
		}
		return -1
	}, text)
}

// ContainsAny reports whether text contains any keyword. ASCII keywords must
// match whole words so that "hi" does not fire on "this".
func ContainsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if asciiWord.MatchString(kw) {
			if containsWord(lower, kw) {
				return true
			}
			continue
		}
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func containsWord(text, word string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return false
		}
		begin := start + idx
		end := begin + len(word)
		if !isWordByte(text, begin-1) && !isWordByte(text, end) {
			return true
		}
		start = begin + 1
	}
}

func isWordByte(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
