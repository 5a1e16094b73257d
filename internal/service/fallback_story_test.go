package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talecraft/api/internal/model"
)

func TestShortTheme(t *testing.T) {
	assert.Equal(t, "odwaga", ShortTheme("Bajka o Odwaga"))
	assert.Equal(t, "przyjaźń", ShortTheme("bajka przyjaźń"))
	assert.Equal(t, "smok i księżniczka", ShortTheme("  Smok i Księżniczka "))
}

func TestRenderFallbackStory(t *testing.T) {
	story, err := RenderFallbackStory(model.Brief{Theme: "Bajka o odwaga", Characters: "Kotek Filemon", DurationSeconds: 60})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(story, "Dawno, dawno temu, w niezwykłej krainie żył sobie Kotek Filemon."))
	assert.Contains(t, story, "niezwykła odwaga")
	assert.Contains(t, story, "smok")
	assert.Contains(t, story, "\n\n")
	assert.GreaterOrEqual(t, len([]rune(story)), minStoryChars)
	assert.False(t, NewLanguageDetector(6, 100).IsWrongLanguage(story))
}

func TestRenderFallbackStory_Deterministic(t *testing.T) {
	brief := model.Brief{Theme: "przyjaźń", Characters: "Ala", DurationSeconds: 30}
	a, err := RenderFallbackStory(brief)
	require.NoError(t, err)
	b, err := RenderFallbackStory(brief)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
