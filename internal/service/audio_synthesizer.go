package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/talecraft/api/internal/client"
	"github.com/talecraft/api/internal/storage"
)

const artifactPrefix = "audio/"

// SpeechSynthesizer is the text-to-speech provider used by the synthesizer
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice client.VoiceProfile) ([]byte, error)
	PrimaryVoice() client.VoiceProfile
	FallbackVoice() (client.VoiceProfile, bool)
	IsConfigured() bool
}

// AudioSynthesizerConfig bounds the chunking and the artifact validation
type AudioSynthesizerConfig struct {
	MaxChunkChars int
	MinAudioBytes int64
}

// AudioResult describes a validated artifact
type AudioResult struct {
	Ref               string
	Size              int64
	Voice             string
	UsedFallbackVoice bool
	Chunks            int
}

// AudioSynthesizer narrates story text into exactly one stored artifact
type AudioSynthesizer struct {
	tts   SpeechSynthesizer
	store storage.ArtifactStore
	cfg   AudioSynthesizerConfig
	log   zerolog.Logger
	now   func() time.Time
}

func NewAudioSynthesizer(tts SpeechSynthesizer, store storage.ArtifactStore, cfg AudioSynthesizerConfig, log zerolog.Logger) *AudioSynthesizer {
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = 4800
	}
	return &AudioSynthesizer{
		tts:   tts,
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "audio_synthesizer").Logger(),
		now:   time.Now,
	}
}

// Synthesize renders text with the primary voice, retries the whole chunk set
// once with the fallback voice, writes one artifact and validates it.
func (a *AudioSynthesizer) Synthesize(ctx context.Context, text string) (AudioResult, error) {
	if a.tts == nil || !a.tts.IsConfigured() {
		return AudioResult{}, fmt.Errorf("%w: text-to-speech provider not configured", ErrAudioSynthesis)
	}

	chunks := SplitTextIntoChunks(text, a.cfg.MaxChunkChars)
	if len(chunks) == 0 {
		return AudioResult{}, fmt.Errorf("%w: no text to narrate", ErrAudioSynthesis)
	}

	voice := a.tts.PrimaryVoice()
	usedFallback := false

	audio, err := a.render(ctx, chunks, voice)
	if err != nil {
		a.log.Warn().Err(err).Str("voice", voice.VoiceID).Int("status", client.StatusCode(err)).Msg("primary voice failed")

		fallback, ok := a.tts.FallbackVoice()
		if !ok {
			return AudioResult{}, fmt.Errorf("%w: %w", ErrAudioSynthesis, err)
		}
		if ctx.Err() != nil {
			return AudioResult{}, fmt.Errorf("%w: %w", ErrAudioSynthesis, ctx.Err())
		}

		audio, err = a.render(ctx, chunks, fallback)
		if err != nil {
			a.log.Error().Err(err).Str("voice", fallback.VoiceID).Msg("fallback voice failed")
			return AudioResult{}, fmt.Errorf("%w: fallback voice: %w", ErrAudioSynthesis, err)
		}
		voice = fallback
		usedFallback = true
	}

	ref, err := a.store.Write(ctx, artifactPrefix+a.artifactName(usedFallback), audio)
	if err != nil {
		return AudioResult{}, fmt.Errorf("%w: failed to write artifact: %w", ErrAudioSynthesis, err)
	}

	size, err := a.validate(ctx, ref)
	if err != nil {
		a.log.Warn().Err(err).Str("ref", ref).Msg("discarding invalid audio artifact")
		if delErr := a.store.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			a.log.Error().Err(delErr).Str("ref", ref).Msg("failed to delete invalid artifact")
		}
		return AudioResult{}, fmt.Errorf("%w: %w", ErrAudioSynthesis, err)
	}

	a.log.Info().
		Str("ref", ref).
		Int64("size", size).
		Int("chunks", len(chunks)).
		Bool("fallback_voice", usedFallback).
		Msg("audio artifact stored")

	return AudioResult{
		Ref:               ref,
		Size:              size,
		Voice:             voice.VoiceID,
		UsedFallbackVoice: usedFallback,
		Chunks:            len(chunks),
	}, nil
}

func (a *AudioSynthesizer) render(ctx context.Context, chunks []string, voice client.VoiceProfile) ([]byte, error) {
	var buf bytes.Buffer
	for i, chunk := range chunks {
		data, err := a.tts.Synthesize(ctx, chunk, voice)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

func (a *AudioSynthesizer) validate(ctx context.Context, ref string) (int64, error) {
	exists, err := a.store.Exists(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("failed to check artifact: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s missing after write", ErrArtifactIntegrity, ref)
	}

	size, err := a.store.Size(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s missing after write", ErrArtifactIntegrity, ref)
		}
		return 0, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if size < a.cfg.MinAudioBytes {
		return size, fmt.Errorf("%w: %s is %d bytes, expected at least %d", ErrArtifactIntegrity, ref, size, a.cfg.MinAudioBytes)
	}
	return size, nil
}

func (a *AudioSynthesizer) artifactName(fallback bool) string {
	prefix := "audio"
	if fallback {
		prefix = "audio_fallback"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s.mp3", prefix, a.now().UnixMilli(), suffix)
}
