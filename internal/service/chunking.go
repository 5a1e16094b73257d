package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var chunkSentencePattern = regexp.MustCompile(`[^.!?]*[.!?]+|[^.!?]+$`)

// SplitTextIntoChunks packs whole sentences into chunks of at most limit
// characters. A sentence longer than limit is cut at its last whitespace
// before the limit, or hard-cut when it has none.
func SplitTextIntoChunks(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, raw := range chunkSentencePattern.FindAllString(text, -1) {
		sentence := strings.TrimSpace(raw)
		n := utf8.RuneCountInString(sentence)
		if n == 0 {
			continue
		}

		if n > limit {
			flush()
			chunks = append(chunks, splitLongSentence(sentence, limit)...)
			continue
		}

		sep := 0
		if currentLen > 0 {
			sep = 1
		}
		if currentLen+sep+n > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		currentLen += sep + n
	}
	flush()

	return chunks
}

func splitLongSentence(sentence string, limit int) []string {
	var parts []string
	rest := []rune(sentence)

	for len(rest) > limit {
		cut := -1
		for i := limit; i > 0; i-- {
			if unicode.IsSpace(rest[i]) {
				cut = i
				break
			}
		}

		if cut <= 0 {
			parts = append(parts, string(rest[:limit]))
			rest = rest[limit:]
		} else {
			parts = append(parts, strings.TrimSpace(string(rest[:cut])))
			rest = rest[cut+1:]
		}
		rest = []rune(strings.TrimLeftFunc(string(rest), unicode.IsSpace))
	}

	if len(rest) > 0 {
		parts = append(parts, string(rest))
	}
	return parts
}
