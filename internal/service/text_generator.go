package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/talecraft/api/internal/client"
	"github.com/talecraft/api/internal/model"
)

const (
	narrationWordsPerMinute = 150
	charsPerWord            = 7
	minMaxTokens            = 200
	maxMaxTokens            = 2000
	minStoryChars           = 50

	storySystemPrompt = "Jesteś profesjonalnym pisarzem bajek dla dzieci, piszącym tylko po polsku. " +
		"Twoje bajki są odpowiednie dla dzieci w wieku 3-10 lat."
	targetLanguageSuffix = "\n\nTWOJA ODPOWIEDŹ MUSI BYĆ W JĘZYKU POLSKIM. TO BARDZO WAŻNE."
)

// ChatCompleter is the text provider used by the generator
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, req client.CompletionRequest) (string, error)
	IsConfigured() bool
}

// TextGeneratorConfig tunes the retry loop
type TextGeneratorConfig struct {
	MaxAttempts         int
	Backoff             time.Duration
	ForceTargetLanguage bool
}

// TextResult is the outcome of the text stage
type TextResult struct {
	Text         string
	Attempts     int
	UsedFallback bool
}

// TextGenerator produces the story text of a brief
type TextGenerator struct {
	llm      ChatCompleter
	detector *LanguageDetector
	cfg      TextGeneratorConfig
	log      zerolog.Logger
}

func NewTextGenerator(llm ChatCompleter, detector *LanguageDetector, cfg TextGeneratorConfig, log zerolog.Logger) *TextGenerator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if detector == nil {
		detector = NewLanguageDetector(0, 0)
	}
	return &TextGenerator{
		llm:      llm,
		detector: detector,
		cfg:      cfg,
		log:      log.With().Str("component", "text_generator").Logger(),
	}
}

// StoryBudget converts a narration length into a word target and a token cap
func StoryBudget(durationSeconds int) (words, maxTokens int) {
	words = int(math.Round(float64(durationSeconds) * narrationWordsPerMinute / 60))
	maxTokens = words * charsPerWord
	if maxTokens < minMaxTokens {
		maxTokens = minMaxTokens
	}
	if maxTokens > maxMaxTokens {
		maxTokens = maxMaxTokens
	}
	return words, maxTokens
}

// attemptState is the per-call retry bookkeeping
type attemptState struct {
	number    int
	waited    time.Duration
	lastError error
}

func (s *attemptState) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		s.waited += d
		return nil
	}
}

// Generate asks the provider for a story, retrying with stricter prompts, and
// falls back to the built-in story when every attempt is rejected.
func (g *TextGenerator) Generate(ctx context.Context, brief model.Brief) (TextResult, error) {
	words, maxTokens := StoryBudget(brief.DurationSeconds)

	if g.llm == nil || !g.llm.IsConfigured() {
		g.log.Warn().Msg("text provider not configured, using fallback story")
		return g.fallback(brief, 0)
	}

	state := &attemptState{}
	for state.number < g.cfg.MaxAttempts {
		if state.number > 0 {
			if err := state.wait(ctx, g.cfg.Backoff); err != nil {
				return g.interrupted(brief, state, err)
			}
		}
		state.number++

		log := g.log.With().Int("attempt", state.number).Int("max_attempts", g.cfg.MaxAttempts).Logger()

		text, err := g.llm.ChatCompletion(ctx, client.CompletionRequest{
			System:           storySystemPrompt,
			Prompt:           g.buildPrompt(brief, words, state.number),
			Temperature:      float32(0.7 + 0.1*float64(state.number)),
			TopP:             0.9,
			PresencePenalty:  0.1,
			FrequencyPenalty: 0.4,
			MaxTokens:        maxTokens,
		})
		if err != nil {
			state.lastError = err
			log.Error().Err(err).Int("status", client.StatusCode(err)).Msg("text provider request failed")
			if ctx.Err() != nil {
				return g.interrupted(brief, state, ctx.Err())
			}
			continue
		}

		text = strings.TrimSpace(text)
		if len([]rune(text)) < minStoryChars {
			log.Warn().Int("chars", len([]rune(text))).Msg("story text too short")
			continue
		}
		if g.detector.IsWrongLanguage(text) {
			log.Warn().Msg("story text is not in Polish")
			continue
		}

		return TextResult{Text: FormatStoryText(text), Attempts: state.number}, nil
	}

	g.log.Warn().
		Int("attempts", state.number).
		Dur("waited", state.waited).
		AnErr("last_error", state.lastError).
		Msg("all attempts rejected, using fallback story")
	return g.fallback(brief, state.number)
}

// interrupted serves the fallback story for a run cancelled mid-stage
func (g *TextGenerator) interrupted(brief model.Brief, state *attemptState, cause error) (TextResult, error) {
	g.log.Warn().
		Err(cause).
		Int("attempts", state.number).
		AnErr("last_error", state.lastError).
		Msg("text stage interrupted, using fallback story")
	return g.fallback(brief, state.number)
}

func (g *TextGenerator) fallback(brief model.Brief, attempts int) (TextResult, error) {
	text, err := RenderFallbackStory(brief)
	if err != nil {
		return TextResult{}, err
	}
	return TextResult{Text: text, Attempts: attempts, UsedFallback: true}, nil
}

func (g *TextGenerator) buildPrompt(brief model.Brief, words, attempt int) string {
	var prompt string

	switch attempt {
	case 1:
		prompt = fmt.Sprintf("Napisz bajkę dla dzieci o temacie %q z bohaterami %q.\n"+
			"Bajka powinna mieć około %d słów i być odpowiednia dla dzieci w wieku 3-10 lat.\n"+
			"Pisz TYLKO w języku polskim.",
			brief.Theme, brief.Characters, words)
	case 2:
		prompt = fmt.Sprintf("WAŻNE: Odpowiadaj TYLKO PO POLSKU. Nie pisz nic po angielsku.\n"+
			"Napisz WYŁĄCZNIE polską bajkę dla dzieci o %q z postaciami %q.\n"+
			"Bajka powinna mieć około %d słów. Unikaj dialogów, skupiaj się na narracji.",
			brief.Theme, brief.Characters, words)
	default:
		prompt = fmt.Sprintf("OBOWIĄZKOWO ODPOWIADAJ TYLKO PO POLSKU.\n"+
			"Napisz prostą bajkę dla małych dzieci po polsku. Temat: %s. Bohaterowie: %s.\n"+
			"Długość: około %d słów. Pisz prostym językiem. NIE używaj angielskich słów.\n"+
			"NIE wyjaśniaj nic. Zwróć TYLKO tekst bajki.",
			brief.Theme, brief.Characters, words)
	}

	if g.cfg.ForceTargetLanguage {
		prompt += targetLanguageSuffix
	}
	return prompt
}
