package ollama

import (
	"strings"
	"unicode/utf8"
)

// MaxPromptLength is the longest prompt, in runes, sent upstream.
const MaxPromptLength = 100000

// SanitizePrompt strips control characters other than tab, newline and
// carriage return, drops invalid UTF-8 and truncates to MaxPromptLength runes.
func SanitizePrompt(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ToValidUTF8(text, "")
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20, r >= 0x7f && r <= 0x9f:
			return -1
		}
		return r
	}, text)

	if utf8.RuneCountInString(text) <= MaxPromptLength {
		return text
	}
	n := 0
	for i := range text {
		if n == MaxPromptLength {
			return text[:i]
		}
		n++
	}
	return text
}
