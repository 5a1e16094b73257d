package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguageDetector_IsWrongLanguage(t *testing.T) {
	d := NewLanguageDetector(6, 100)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "empty", text: "   ", want: true},
		{name: "polish story", text: "Dawno temu, w zaczarowanym lesie, żył sobie mały smok o imieniu Feliks.", want: false},
		{name: "english story", text: "There was a little dog and a cat. They lived in the forest with the owl. This is the story of them.", want: true},
		{name: "english opener despite diacritics", text: "Once upon a time żył sobie smok.", want: true},
		{name: "assistant preamble", text: "Sure! Here is a fairy tale for you: Dawno temu żył smok.", want: true},
		{name: "below threshold", text: strings.Repeat("the ", 5) + "koniec", want: false},
		{name: "at threshold", text: strings.Repeat("the ", 6) + "koniec", want: true},
		{name: "at threshold with diacritic", text: strings.Repeat("the ", 6) + "koniec źrebaka", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsWrongLanguage(tt.text))
		})
	}
}

func TestLanguageDetector_OpeningWindow(t *testing.T) {
	d := NewLanguageDetector(6, 20)
	text := "Dawno temu w lesie żył smok, a potem once upon a time."
	assert.False(t, d.IsWrongLanguage(text))

	d = NewLanguageDetector(6, 100)
	assert.True(t, d.IsWrongLanguage(text))
}

func TestNewLanguageDetector_Defaults(t *testing.T) {
	d := NewLanguageDetector(0, 0)
	assert.Equal(t, 6, d.matchThreshold)
	assert.Equal(t, 100, d.openingWindow)
}
