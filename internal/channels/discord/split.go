package discord

import (
	"strings"
	"unicode/utf8"
)

// splitMessage splits text into sequential chunks of at most maxLen
// characters each. Chunks concatenated in order reproduce the input
// exactly; splitting is by rune so a multi-byte character is never torn.
func splitMessage(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	count := 0
	for _, r := range text {
		current.WriteRune(r)
		count++
		if count == maxLen {
			chunks = append(chunks, current.String())
			current.Reset()
			count = 0
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
