package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	whitespacePattern      = regexp.MustCompile(`\s+`)
	repeatedDots           = regexp.MustCompile(`\.{2,}`)
	repeatedQuestionMarks  = regexp.MustCompile(`\?{2,}`)
	repeatedExclamations   = regexp.MustCompile(`!{2,}`)
	spaceBeforePunctuation = regexp.MustCompile(` +([,.!?;:])`)
	sentencePattern        = regexp.MustCompile(`[^.!?]+[.!?]+["”»]*`)
)

const closingQuotes = `"”»`

const sentencesPerParagraph = 3

// FormatStoryText normalizes story text for display and narration
func FormatStoryText(text string) string {
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	if text == "" {
		return ""
	}

	first, size := utf8.DecodeRuneInString(text)
	text = string(unicode.ToUpper(first)) + text[size:]

	text = repeatedDots.ReplaceAllString(text, ".")
	text = repeatedQuestionMarks.ReplaceAllString(text, "?")
	text = repeatedExclamations.ReplaceAllString(text, "!")

	if last := strings.TrimRight(text, closingQuotes); last == "" || !strings.ContainsAny(last[len(last)-1:], ".!?") {
		text += "."
	}

	text = spaceBeforePunctuation.ReplaceAllString(text, "$1")

	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) <= sentencesPerParagraph {
		return text
	}

	var b strings.Builder
	for i, s := range sentences {
		s = strings.TrimSpace(s)
		switch {
		case i == 0:
		case i%sentencesPerParagraph == 0:
			b.WriteString("\n\n")
		default:
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return b.String()
}
