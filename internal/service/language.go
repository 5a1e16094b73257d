package service

import (
	"regexp"
	"strings"
)

var (
	functionWordPattern = regexp.MustCompile(`(?i)\b(the|and|of|to|is|in|that|it|for|you|with|on|this|have|are|as)\b`)
	stockPhrasePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bonce upon a time\b`),
		regexp.MustCompile(`(?i)\bthe end\b`),
		regexp.MustCompile(`(?i)\bfairy tale\b`),
	}
	targetLetterPattern = regexp.MustCompile(`(?i)[ąćęłńóśźż]`)

	stockOpeners = []string{"once upon a time", "here is a fairy tale", "i will write a story"}
)

// LanguageDetector flags model output that drifted into English instead of Polish
type LanguageDetector struct {
	matchThreshold int
	openingWindow  int
}

func NewLanguageDetector(matchThreshold, openingWindow int) *LanguageDetector {
	if matchThreshold <= 0 {
		matchThreshold = 6
	}
	if openingWindow <= 0 {
		openingWindow = 100
	}
	return &LanguageDetector{matchThreshold: matchThreshold, openingWindow: openingWindow}
}

// IsWrongLanguage reports whether text should be rejected. It is rejected when
// the opening contains an English stock phrase, or when English markers reach
// the threshold and no Polish diacritic appears anywhere.
func (d *LanguageDetector) IsWrongLanguage(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}

	opening := []rune(text)
	if len(opening) > d.openingWindow {
		opening = opening[:d.openingWindow]
	}
	lowered := strings.ToLower(string(opening))
	for _, opener := range stockOpeners {
		if strings.Contains(lowered, opener) {
			return true
		}
	}

	return d.englishMarkers(text) >= d.matchThreshold && !targetLetterPattern.MatchString(text)
}

func (d *LanguageDetector) englishMarkers(text string) int {
	count := len(functionWordPattern.FindAllStringIndex(text, -1))
	for _, p := range stockPhrasePatterns {
		if p.MatchString(text) {
			count++
		}
	}
	return count
}
